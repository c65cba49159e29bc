package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"qtsettings/internal/utils"
)

// HostRecord is one Private DNS provider the DNS tile can cycle through.
type HostRecord struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Hostname string `json:"hostname" db:"hostname"`
	Builtin  bool   `json:"builtin" db:"builtin"`
	Selected bool   `json:"selected" db:"selected"`
	Info     string `json:"info,omitempty" db:"info"`
}

// Builtins returns a fresh copy of the predefined providers, all selected.
func Builtins() []HostRecord {
	return []HostRecord{
		{ID: "adguard_default", Name: "AdGuard DNS", Hostname: "dns.adguard.com", Builtin: true, Selected: true, Info: "dns_info_adguard"},
		{ID: "cloudflare_default", Name: "Cloudflare (1.1.1.1)", Hostname: "one.one.one.one", Builtin: true, Selected: true, Info: "dns_info_cloudflare"},
		{ID: "quad9_default", Name: "Quad9 Security", Hostname: "dns.quad9.net", Builtin: true, Selected: true, Info: "dns_info_quad9"},
	}
}

// SortHosts orders builtins first, then custom records, each group by name.
func SortHosts(hosts []HostRecord) {
	sort.SliceStable(hosts, func(i, j int) bool {
		if hosts[i].Builtin != hosts[j].Builtin {
			return hosts[i].Builtin
		}
		return hosts[i].Name < hosts[j].Name
	})
}

// SyncBuiltins rebuilds the list from the fixed builtin set plus the stored
// custom records. Only the selection of a stored builtin survives; its other
// fields always come from the builtin set. An empty list yields the defaults.
func SyncBuiltins(stored []HostRecord) []HostRecord {
	out := Builtins()
	if len(stored) == 0 {
		return out
	}

	selected := make(map[string]bool)
	for _, h := range stored {
		if h.Builtin {
			selected[h.ID] = h.Selected
		}
	}
	for i := range out {
		if sel, ok := selected[out[i].ID]; ok {
			out[i].Selected = sel
		}
	}

	seen := make(map[string]bool, len(stored))
	for _, h := range out {
		seen[h.ID] = true
	}
	for _, h := range stored {
		if h.Builtin || seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		out = append(out, h)
	}

	SortHosts(out)
	return out
}

// FindByHostname returns the first record with the given hostname.
func FindByHostname(hosts []HostRecord, hostname string) (HostRecord, bool) {
	for _, h := range hosts {
		if strings.EqualFold(h.Hostname, hostname) {
			return h, true
		}
	}
	return HostRecord{}, false
}

// ValidateHostname checks a Private DNS provider hostname.
func ValidateHostname(hostname string) error {
	h := strings.TrimSuffix(strings.TrimSpace(hostname), ".")
	if h == "" {
		return fmt.Errorf("%w: hostname is empty", ErrInvalidHost)
	}
	if err := utils.ValidateDomainLength(h); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHost, err)
	}
	for _, label := range strings.Split(h, ".") {
		if err := validateLabel(label); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidHost, hostname, err)
		}
	}
	return nil
}

func validateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("empty label")
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return fmt.Errorf("label %q starts or ends with a hyphen", label)
	}
	for _, c := range label {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
		default:
			return fmt.Errorf("label %q contains %q", label, c)
		}
	}
	return nil
}

// EncodeHosts renders the list as the JSON array the app keeps under
// KeyDNSHostnames.
func EncodeHosts(hosts []HostRecord) ([]byte, error) {
	return json.MarshalIndent(hosts, "", "  ")
}

// DecodeHosts parses an exported list. Custom records are validated and
// given an id when they have none; builtins are re-synced as on load.
func DecodeHosts(data []byte, newID func() string) ([]HostRecord, error) {
	if len(data) > utils.MaxHostListSize {
		return nil, fmt.Errorf("%w: host list exceeds %d bytes", ErrInvalidHost, utils.MaxHostListSize)
	}
	var hosts []HostRecord
	if err := json.Unmarshal(data, &hosts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHost, err)
	}

	seen := make(map[string]bool, len(hosts))
	for i := range hosts {
		h := &hosts[i]
		if h.Builtin {
			continue
		}
		h.Name, h.Hostname = strings.TrimSpace(h.Name), strings.TrimSpace(h.Hostname)
		if h.Name == "" {
			return nil, fmt.Errorf("%w: record %d has no name", ErrInvalidHost, i)
		}
		if err := ValidateHostname(h.Hostname); err != nil {
			return nil, err
		}
		if h.ID == "" {
			h.ID = newID()
		}
		if seen[h.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidHost, h.ID)
		}
		seen[h.ID] = true
	}
	return SyncBuiltins(hosts), nil
}
