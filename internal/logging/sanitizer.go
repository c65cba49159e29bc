// Package logging installs the process log format, redaction of resolver
// profile ids and addresses, and an in-memory buffer of recent entries.
package logging

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Secret patterns are always redacted.
var secretPatterns = []*regexp.Regexp{
	// Generic API keys (32+ hex characters)
	regexp.MustCompile(`\b[a-fA-F0-9]{32,}\b`),
	// JWT tokens
	regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`),
}

// profilePattern matches per-account Private DNS hostnames whose first label
// identifies the user: NextDNS, ControlD and AdGuard private resolvers.
var profilePattern = regexp.MustCompile(`\b[A-Za-z0-9-]{4,}\.((?:dns\.nextdns\.io)|(?:dns\.controld\.com)|(?:d\.adguard-dns\.com))\b`)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	ipv4Pattern  = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`)
)

// SensitiveFieldNames are field names that should be redacted
var SensitiveFieldNames = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"apikey":        true,
	"authorization": true,
	"adb_serial":    true,
}

func redactSecrets(s string) string {
	for _, p := range secretPatterns {
		s = p.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// SanitizeString removes secrets and PII from a string.
func SanitizeString(s string) string {
	s = redactSecrets(s)
	s = profilePattern.ReplaceAllString(s, "[PROFILE].$1")
	s = emailPattern.ReplaceAllString(s, "[EMAIL-REDACTED]")
	s = ipv4Pattern.ReplaceAllString(s, "[IP-REDACTED]")
	return s
}

func sanitizeFields(fields logrus.Fields, clean func(string) string) logrus.Fields {
	sanitized := make(logrus.Fields, len(fields))
	for k, v := range fields {
		if SensitiveFieldNames[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}

		switch val := v.(type) {
		case string:
			sanitized[k] = clean(val)
		case error:
			if val != nil {
				sanitized[k] = clean(val.Error())
			}
		case fmt.Stringer:
			sanitized[k] = clean(val.String())
		case bool, int, int64, float64:
			sanitized[k] = val
		default:
			sanitized[k] = clean(fmt.Sprintf("%v", val))
		}
	}
	return sanitized
}

// SanitizeFields removes sensitive data from log fields
func SanitizeFields(fields logrus.Fields) logrus.Fields {
	return sanitizeFields(fields, SanitizeString)
}

// SanitizingHook redacts every entry before it is written.
type SanitizingHook struct {
	enablePIILogging bool
}

func NewSanitizingHook(enablePII bool) *SanitizingHook {
	return &SanitizingHook{enablePIILogging: enablePII}
}

func (h *SanitizingHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire sanitizes log entries before they're written. With PII logging on,
// only secrets are removed.
func (h *SanitizingHook) Fire(entry *logrus.Entry) error {
	clean := SanitizeString
	if h.enablePIILogging {
		clean = redactSecrets
	}
	entry.Message = clean(entry.Message)
	if entry.Data != nil {
		entry.Data = sanitizeFields(entry.Data, clean)
	}
	return nil
}

// Setup configures the standard logger: level, text format with full
// timestamps, redaction and a buffer of recent entries, which it returns.
func Setup(level string, enablePII bool) (*Buffer, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	buf := NewBuffer(DefaultBufferSize)
	logrus.AddHook(NewSanitizingHook(enablePII))
	logrus.AddHook(buf)
	return buf, nil
}
