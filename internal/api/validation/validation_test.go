package validation_test

import (
	"testing"

	"github.com/meyoo/platform/internal/api/validation"
	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last@example.co.uk",
		"user+tag@example.io",
	}
	for _, email := range valid {
		assert.True(t, validation.IsValidEmail(email), email)
	}

	invalid := []string{
		"",
		"not-an-email",
		"@example.com",
		"user@",
		"user@example",
	}
	for _, email := range invalid {
		assert.False(t, validation.IsValidEmail(email), email)
	}
}

func TestIsValidUUID(t *testing.T) {
	assert.True(t, validation.IsValidUUID("b3c9d7ce-38a1-4b27-9f2e-0a4c1d2e3f40"))
	assert.False(t, validation.IsValidUUID("not-a-uuid"))
	assert.False(t, validation.IsValidUUID(""))
}

func TestIsValidCode(t *testing.T) {
	assert.True(t, validation.IsValidCode("123456"))
	assert.False(t, validation.IsValidCode("12345"))
	assert.False(t, validation.IsValidCode("1234567"))
	assert.False(t, validation.IsValidCode("12345a"))
}

func TestIsValidPassword(t *testing.T) {
	t.Run("accepts letters and digits", func(t *testing.T) {
		ok, _ := validation.IsValidPassword("securepassword123")
		assert.True(t, ok)
	})

	t.Run("rejects short passwords", func(t *testing.T) {
		ok, msg := validation.IsValidPassword("abc1")
		assert.False(t, ok)
		assert.NotEmpty(t, msg)
	})

	t.Run("rejects digit-only passwords", func(t *testing.T) {
		ok, _ := validation.IsValidPassword("123456789")
		assert.False(t, ok)
	})
}
