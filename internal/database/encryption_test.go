package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealer_Disabled(t *testing.T) {
	s, err := newSealer(false)
	require.NoError(t, err)

	out, err := s.Seal("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	_, err = s.Open(sealedPrefix + "abc")
	assert.Error(t, err)
}

func TestSealer_RoundTrip(t *testing.T) {
	t.Setenv(secretEnvVar, strings.Repeat("k", 32))
	s, err := newSealer(true)
	require.NoError(t, err)

	a, err := s.Seal("AIza-key")
	require.NoError(t, err)
	b, err := s.Seal("AIza-key")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonces differ")

	plain, err := s.Open(a)
	require.NoError(t, err)
	assert.Equal(t, "AIza-key", plain)

	legacy, err := s.Open("stored-before-encryption")
	require.NoError(t, err)
	assert.Equal(t, "stored-before-encryption", legacy)
}

func TestSealer_ShortSecret(t *testing.T) {
	t.Setenv(secretEnvVar, "short")
	_, err := newSealer(true)
	assert.Error(t, err)
}

func TestSealer_Tampered(t *testing.T) {
	t.Setenv(secretEnvVar, strings.Repeat("k", 32))
	s, err := newSealer(true)
	require.NoError(t, err)

	_, err = s.Open(sealedPrefix + "!!!")
	assert.Error(t, err)
	_, err = s.Open(sealedPrefix + "AAAA")
	assert.Error(t, err)
}
