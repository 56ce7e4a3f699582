package security

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"waenhancer.db", false},
		{"data/waenhancer.db", false},
		{"/var/lib/waenhancer/store.db", false},
		{"", true},
		{"../secret.db", true},
		{"data/../../etc/passwd", true},
		{"bad\x00.db", true},
	}
	for _, tt := range tests {
		err := ValidateFilePath(tt.path)
		if tt.wantErr {
			assert.Error(t, err, tt.path)
		} else {
			assert.NoError(t, err, tt.path)
		}
	}
}

func TestVerifyToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, VerifyToken(r, ""))
	assert.False(t, VerifyToken(r, "secret"))

	r.Header.Set(TokenHeader, "secret")
	assert.True(t, VerifyToken(r, "secret"))
	assert.False(t, VerifyToken(r, "other"))

	q := httptest.NewRequest("GET", "/ws?token=secret", nil)
	assert.True(t, VerifyToken(q, "secret"))
}
