// Package cycle computes the next state of a tile from the user's candidate
// list. It is the only place that decides "what comes after this state".
package cycle

import (
	"errors"
	"fmt"
	"strings"

	"qtsettings/internal/settings"
	"qtsettings/internal/store"
)

var (
	// ErrNoCandidates means the user enabled no states for cycling.
	ErrNoCandidates = errors.New("no states enabled for cycling")
	// ErrBlankHostname means the ring advanced onto a host record with an
	// empty hostname and no fallback was enabled.
	ErrBlankHostname = errors.New("next state has a blank hostname")
)

// Advance returns the candidate after current. A current state that is not in
// the list (changed by another app, or no longer enabled) advances to the
// first candidate.
func Advance[T any](current T, candidates []T, eq func(a, b T) bool) (T, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, ErrNoCandidates
	}
	idx := -1
	for i, c := range candidates {
		if eq(current, c) {
			idx = i
			break
		}
	}
	return candidates[(idx+1)%len(candidates)], nil
}

// DNSCandidates builds the DNS ring: Off, Auto, then every selected host in
// list order. Hosts sharing a hostname collapse to their first occurrence,
// since two equal states in one ring would make the second unreachable.
func DNSCandidates(offEnabled, autoEnabled bool, hosts []store.HostRecord) []settings.DnsState {
	var out []settings.DnsState
	if offEnabled {
		out = append(out, settings.Off())
	}
	if autoEnabled {
		out = append(out, settings.Auto())
	}
	seen := make(map[string]bool)
	for _, h := range hosts {
		if !h.Selected {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(h.Hostname))
		if key != "" && seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, settings.On(strings.TrimSpace(h.Hostname)))
	}
	return out
}

// USBCandidates builds the USB ring, enabled before disabled.
func USBCandidates(onEnabled, offEnabled bool) []settings.UsbState {
	var out []settings.UsbState
	if onEnabled {
		out = append(out, settings.UsbEnabled)
	}
	if offEnabled {
		out = append(out, settings.UsbDisabled)
	}
	return out
}

// Fallback is the replacement for a blank hostname state: Off when enabled,
// else Auto when enabled. ok is false when neither is.
func Fallback(offEnabled, autoEnabled bool) (settings.DnsState, bool) {
	switch {
	case offEnabled:
		return settings.Off(), true
	case autoEnabled:
		return settings.Auto(), true
	}
	return settings.DnsState{}, false
}

// Decision is the result of NextDNS.
type Decision struct {
	Next settings.DnsState
	// Substituted is set when the ring produced a blank hostname and Next is
	// the fallback instead.
	Substituted bool
}

// NextDNS advances the DNS ring and applies the blank hostname fallback.
func NextDNS(current settings.DnsState, offEnabled, autoEnabled bool, hosts []store.HostRecord) (Decision, error) {
	next, err := Advance(current, DNSCandidates(offEnabled, autoEnabled, hosts), settings.DnsState.Equal)
	if err != nil {
		return Decision{}, err
	}
	if !next.IsBlankOn() {
		return Decision{Next: next}, nil
	}
	fb, ok := Fallback(offEnabled, autoEnabled)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %w", ErrBlankHostname, ErrNoCandidates)
	}
	return Decision{Next: fb, Substituted: true}, nil
}

// NextUSB advances the USB ring.
func NextUSB(current settings.UsbState, onEnabled, offEnabled bool) (settings.UsbState, error) {
	return Advance(current, USBCandidates(onEnabled, offEnabled), func(a, b settings.UsbState) bool { return a == b })
}
