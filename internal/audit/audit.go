// Package audit records every change qtsettings makes to a device setting,
// so a surprising DNS or USB debugging state can be traced back to the tap,
// timer or detector that caused it.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType represents the type of audit event
type EventType string

const (
	// Setting writes
	EventDNSChanged  EventType = "DNS_CHANGED"
	EventUSBChanged  EventType = "USB_CHANGED"
	EventSelfHealed  EventType = "SELF_HEALED"
	EventWriteFailed EventType = "WRITE_FAILED"

	// Auto-revert
	EventRevertArmed     EventType = "REVERT_ARMED"
	EventRevertFired     EventType = "REVERT_FIRED"
	EventRevertCancelled EventType = "REVERT_CANCELLED"

	// Detectors
	EventVPNSuppressed  EventType = "VPN_SUPPRESSED"
	EventVPNRestored    EventType = "VPN_RESTORED"
	EventNetworkApplied EventType = "NETWORK_APPLIED"

	// Privilege and lifecycle
	EventPrivilegeGranted EventType = "PRIVILEGE_GRANTED"
	EventServiceStart     EventType = "SERVICE_START"
	EventServiceStop      EventType = "SERVICE_STOP"
)

// Event represents an audit log entry
type Event struct {
	Timestamp   time.Time              `json:"timestamp"`
	Type        EventType              `json:"type"`
	Severity    string                 `json:"severity"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	ProcessID   int                    `json:"process_id"`
	ProcessName string                 `json:"process_name"`
}

// Logger handles audit logging
type Logger struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
	logPath string
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// Initialize opens today's audit file under dir. Calling it again with a
// logger already open is a no-op.
func Initialize(dir string) error {
	defaultMu.Lock()
	if defaultLogger != nil {
		defaultMu.Unlock()
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		defaultMu.Unlock()
		return fmt.Errorf("creating audit directory: %w", err)
	}

	logPath := filepath.Join(dir, fmt.Sprintf("audit-%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		defaultMu.Unlock()
		return fmt.Errorf("opening audit log: %w", err)
	}

	defaultLogger = &Logger{
		file:    file,
		encoder: json.NewEncoder(file),
		logPath: logPath,
	}
	defaultMu.Unlock()

	Log(EventServiceStart, "info", "Audit logging initialized", nil)
	return nil
}

// Log records an audit event
func Log(eventType EventType, severity string, message string, details map[string]interface{}) {
	defaultMu.Lock()
	l := defaultLogger
	defaultMu.Unlock()

	fields := logrus.Fields{
		"audit_type": eventType,
		"details":    details,
	}
	if l == nil {
		// Fallback to regular logging if audit not initialized
		logrus.WithFields(fields).Info(message)
		return
	}

	event := Event{
		Timestamp:   time.Now(),
		Type:        eventType,
		Severity:    severity,
		Message:     message,
		Details:     details,
		ProcessID:   os.Getpid(),
		ProcessName: filepath.Base(os.Args[0]),
	}

	l.mu.Lock()
	if err := l.encoder.Encode(event); err != nil {
		logrus.WithError(err).Error("Failed to write audit log")
	}
	l.mu.Unlock()

	fields["severity"] = severity
	logrus.WithFields(fields).Debug(message)
}

// LogSettingChange records a write to the DNS or USB setting. source names the
// component that wrote it: tap, revert, vpn, network, self-heal.
func LogSettingChange(eventType EventType, source string, from, to fmt.Stringer) {
	Log(eventType, "info", fmt.Sprintf("%s: %s -> %s", source, from, to), map[string]interface{}{
		"source": source,
		"from":   from.String(),
		"to":     to.String(),
	})
}

// LogRevert records an auto-revert lifecycle event.
func LogRevert(eventType EventType, tile string, captured fmt.Stringer, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["tile"] = tile
	details["captured"] = captured.String()
	Log(eventType, "info", fmt.Sprintf("%s revert %s", tile, captured), details)
}

// LogWriteFailure records a setting write that did not take effect.
func LogWriteFailure(source string, err error) {
	Log(EventWriteFailed, "warning", "Setting write failed", map[string]interface{}{
		"source": source,
		"error":  err.Error(),
	})
}

// Close closes the audit logger
func Close() error {
	defaultMu.Lock()
	l := defaultLogger
	defaultMu.Unlock()
	if l == nil {
		return nil
	}

	Log(EventServiceStop, "info", "Audit logging stopped", nil)

	defaultMu.Lock()
	defaultLogger = nil
	defaultMu.Unlock()
	return l.file.Close()
}

// GetLogPath returns the current audit log path
func GetLogPath() string {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger != nil {
		return defaultLogger.logPath
	}
	return ""
}
