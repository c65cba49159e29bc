package settings

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrWriteFailed      = errors.New("write failed")
	ErrBlankHostname    = errors.New("hostname mode requires a hostname")
)

// ErrorKind classifies a failed write.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindPermissionDenied
)

func (k ErrorKind) String() string {
	if k == KindPermissionDenied {
		return "permission_denied"
	}
	return "other"
}

// WriteError is returned by every Port write that did not take effect.
type WriteError struct {
	Kind ErrorKind
	Key  string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s (%s): %v", e.Key, e.Kind, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is lets callers test the kind with errors.Is(err, ErrPermissionDenied).
func (e *WriteError) Is(target error) bool {
	switch target {
	case ErrPermissionDenied:
		return e.Kind == KindPermissionDenied
	case ErrWriteFailed:
		return e.Kind == KindOther
	}
	return false
}

func permissionDenied(key string, err error) *WriteError {
	return &WriteError{Kind: KindPermissionDenied, Key: key, Err: err}
}

func writeFailed(key string, err error) *WriteError {
	return &WriteError{Kind: KindOther, Key: key, Err: err}
}

// isPermissionText recognises the messages "settings put" prints when the
// caller lacks WRITE_SECURE_SETTINGS.
func isPermissionText(s string) bool {
	s = strings.ToLower(s)
	for _, marker := range []string{"securityexception", "permission denial", "permission denied", "write_secure_settings"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
