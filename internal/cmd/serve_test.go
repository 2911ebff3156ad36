package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAPIKeys(t *testing.T) {
	assert.Empty(t, parseAPIKeys(""))

	m := parseAPIKeys("key-1")
	assert.Equal(t, map[string]string{"key-1": "unknown"}, m)

	m = parseAPIKeys("key-1:email-responder, key-2:crm-sync ,key-3")
	assert.Equal(t, map[string]string{
		"key-1": "email-responder",
		"key-2": "crm-sync",
		"key-3": "unknown",
	}, m)

	// Empty entries are skipped.
	m = parseAPIKeys("key-1,, ,key-2:svc")
	assert.Equal(t, map[string]string{"key-1": "unknown", "key-2": "svc"}, m)
}
