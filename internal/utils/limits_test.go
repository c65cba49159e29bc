package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAllLimited(t *testing.T) {
	data, err := ReadAllLimited(strings.NewReader("abcd"), 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))

	_, err = ReadAllLimited(strings.NewReader("abcde"), 4)
	assert.Error(t, err)
}

func TestCheckYAML(t *testing.T) {
	assert.NoError(t, CheckYAML([]byte("agent:\n  logLevel: debug\n"), 1024))
	assert.Error(t, CheckYAML([]byte("a: b\n"), 2))
	assert.Error(t, CheckYAML([]byte(strings.Repeat("[", MaxYAMLDepth+1)), 1024))
	assert.Error(t, CheckYAML([]byte("a: &a x\n"+strings.Repeat("b: *a\n", 20)), 1024))
}

func TestValidateDomainLength(t *testing.T) {
	assert.NoError(t, ValidateDomainLength("dns.quad9.net"))
	assert.Error(t, ValidateDomainLength(strings.Repeat("a", 64)+".com"))
	assert.Error(t, ValidateDomainLength(strings.Repeat("a.", 127)+"com"))
}

func TestConcurrencyLimiter(t *testing.T) {
	l := NewConcurrencyLimiter(1)
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
}
