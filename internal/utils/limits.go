package utils

import (
	"fmt"
	"io"
	"strings"
)

const (
	// MaxConfigFileSize is the maximum size for configuration files (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024

	// MaxHostListSize is the maximum size of an imported host list (256KB)
	MaxHostListSize = 256 * 1024

	// MaxYAMLDepth is the maximum nesting depth accepted in YAML input
	MaxYAMLDepth = 32

	// MaxDomainLength is the maximum length for a domain name
	MaxDomainLength = 253

	// MaxLabelLength is the maximum length of a single domain label
	MaxLabelLength = 63

	// MaxHTTPBodySize is the maximum size for control API request bodies (64KB)
	MaxHTTPBodySize = 64 * 1024

	// MaxConcurrentProbes is the maximum number of DoT probes in flight
	MaxConcurrentProbes = 4
)

// ReadAllLimited reads all data from r up to limit bytes
func ReadAllLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(&io.LimitedReader{R: r, N: limit + 1})
	if err != nil {
		return nil, err
	}

	if int64(len(data)) > limit {
		return nil, fmt.Errorf("data exceeds maximum size of %d bytes", limit)
	}

	return data, nil
}

// CheckYAML rejects YAML input that is too large or looks like an alias bomb.
// Callers still decode with yaml.Unmarshal afterwards.
func CheckYAML(data []byte, maxSize int64) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("YAML data exceeds maximum size of %d bytes", maxSize)
	}

	doc := string(data)
	anchors := strings.Count(doc, "&")
	aliases := strings.Count(doc, "*")
	if aliases > 10 && aliases > anchors*10 {
		return fmt.Errorf("potential YAML bomb detected")
	}

	depth, maxDepth := 0, 0
	for _, c := range doc {
		switch c {
		case '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ']', '}':
			depth--
		}
	}
	if maxDepth > MaxYAMLDepth {
		return fmt.Errorf("YAML nesting exceeds %d levels", MaxYAMLDepth)
	}

	return nil
}

// ValidateDomainLength checks if a domain name is within acceptable length
func ValidateDomainLength(domain string) error {
	if len(domain) > MaxDomainLength {
		return fmt.Errorf("domain name exceeds maximum length of %d characters", MaxDomainLength)
	}

	for _, label := range strings.Split(domain, ".") {
		if len(label) > MaxLabelLength {
			return fmt.Errorf("domain label exceeds maximum length of %d characters", MaxLabelLength)
		}
	}

	return nil
}

// ConcurrencyLimiter provides a simple semaphore for limiting concurrent operations
type ConcurrencyLimiter struct {
	sem chan struct{}
}

// NewConcurrencyLimiter creates a new concurrency limiter
func NewConcurrencyLimiter(max int) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{
		sem: make(chan struct{}, max),
	}
}

// TryAcquire attempts to acquire a slot without blocking
func (cl *ConcurrencyLimiter) TryAcquire() bool {
	select {
	case cl.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release releases a slot
func (cl *ConcurrencyLimiter) Release() {
	<-cl.sem
}
