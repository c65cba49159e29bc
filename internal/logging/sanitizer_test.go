package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "NextDNS profile",
			input:    "Private DNS set to 3fa2b1.dns.nextdns.io",
			expected: "Private DNS set to [PROFILE].dns.nextdns.io",
		},
		{
			name:     "ControlD resolver",
			input:    "probing abcd1234ef.dns.controld.com",
			expected: "probing [PROFILE].dns.controld.com",
		},
		{
			name:     "AdGuard private",
			input:    "host=f00dcafe.d.adguard-dns.com",
			expected: "host=[PROFILE].d.adguard-dns.com",
		},
		{
			name:     "Public resolver untouched",
			input:    "Private DNS set to dns.quad9.net",
			expected: "Private DNS set to dns.quad9.net",
		},
		{
			name:     "IP address",
			input:    "wlan0 has 192.168.1.100",
			expected: "wlan0 has [IP-REDACTED]",
		},
		{
			name:     "Email address",
			input:    "owner: user@example.com",
			expected: "owner: [EMAIL-REDACTED]",
		},
		{
			name:     "API key hex",
			input:    "token a1b2c3d4e5f6789012345678901234567890abcd",
			expected: "token [REDACTED]",
		},
		{
			name:     "Clean string",
			input:    "Auto-revert armed",
			expected: "Auto-revert armed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeString(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeString() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSanitizeFields(t *testing.T) {
	fields := logrus.Fields{
		"message":    "Normal message",
		"adb_serial": "R58M123ABC",
		"hostname":   "3fa2b1.dns.nextdns.io",
		"addr":       "10.0.0.7",
		"delay":      5,
		"error":      errors.New("dial 10.0.0.7:853: refused"),
	}

	sanitized := SanitizeFields(fields)

	if sanitized["adb_serial"] != "[REDACTED]" {
		t.Errorf("Expected serial to be redacted, got %v", sanitized["adb_serial"])
	}
	if sanitized["hostname"] != "[PROFILE].dns.nextdns.io" {
		t.Errorf("Expected profile to be redacted, got %v", sanitized["hostname"])
	}
	if sanitized["addr"] != "[IP-REDACTED]" {
		t.Errorf("Expected addr to be redacted, got %v", sanitized["addr"])
	}
	if sanitized["delay"] != 5 {
		t.Errorf("Expected delay to be kept, got %v", sanitized["delay"])
	}
	if !strings.Contains(sanitized["error"].(string), "[IP-REDACTED]") {
		t.Errorf("Expected error to be redacted, got %v", sanitized["error"])
	}
}

func newTestLogger(pii bool) (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.Out = &buf
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	})
	logger.AddHook(NewSanitizingHook(pii))
	return logger, &buf
}

func TestSanitizingHook(t *testing.T) {
	logger, buf := newTestLogger(false)

	logger.WithField("hostname", "3fa2b1.dns.nextdns.io").Info("Private DNS changed")
	output := buf.String()
	if strings.Contains(output, "3fa2b1") {
		t.Error("Profile id not redacted from log output")
	}

	buf.Reset()
	logger.Info("Connection from 192.168.1.100")
	output = buf.String()
	if !strings.Contains(output, "[IP-REDACTED]") {
		t.Error("Expected [IP-REDACTED] in log output")
	}
}

func TestSanitizingHookWithPII(t *testing.T) {
	logger, buf := newTestLogger(true)

	logger.Info("Private DNS set to 3fa2b1.dns.nextdns.io")
	output := buf.String()
	if !strings.Contains(output, "3fa2b1.dns.nextdns.io") {
		t.Error("Hostname should not be redacted when PII logging enabled")
	}

	buf.Reset()
	logger.WithField("token", "anything").Info("API call")
	output = buf.String()
	if strings.Contains(output, "anything") {
		t.Error("Sensitive field not redacted even with PII enabled")
	}
}

func TestBufferRecent(t *testing.T) {
	b := NewBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		b.Push(Entry{Message: msg})
	}

	got := b.Recent(0)
	if len(got) != 3 || got[0].Message != "b" || got[2].Message != "d" {
		t.Fatalf("Recent(0) = %+v", got)
	}
	got = b.Recent(2)
	if len(got) != 2 || got[0].Message != "c" {
		t.Fatalf("Recent(2) = %+v", got)
	}
}

func TestBufferHook(t *testing.T) {
	logger, _ := newTestLogger(false)
	b := NewBuffer(10)
	logger.AddHook(b)

	logger.WithField("addr", "10.1.2.3").Warn("probe failed")
	logger.Debug("not captured")

	got := b.Recent(0)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].Level != "warning" || got[0].Fields["addr"] != "[IP-REDACTED]" {
		t.Errorf("unexpected entry %+v", got[0])
	}
}
