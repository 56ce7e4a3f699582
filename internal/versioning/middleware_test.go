package versioning

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMiddleware() *VersionMiddleware {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewVersionMiddleware(logger)
}

func TestVersionHandler(t *testing.T) {
	tests := []struct {
		name        string
		headers     map[string]string
		wantStatus  int
		wantVersion APIVersion
	}{
		{name: "no header assumes current", wantStatus: http.StatusOK, wantVersion: CurrentVersion},
		{name: "protocol header", headers: map[string]string{APIVersionHeader: "1.0.0"}, wantStatus: http.StatusOK, wantVersion: V1_0_0},
		{
			name:        "accept-version takes precedence",
			headers:     map[string]string{AcceptVersionHeader: "1.1.0", APIVersionHeader: "1.0.0"},
			wantStatus:  http.StatusOK,
			wantVersion: V1_1_0,
		},
		{name: "garbage falls back to current", headers: map[string]string{APIVersionHeader: "latest"}, wantStatus: http.StatusOK, wantVersion: CurrentVersion},
		{name: "too old", headers: map[string]string{APIVersionHeader: "0.9.0"}, wantStatus: http.StatusUpgradeRequired},
		{name: "too new", headers: map[string]string{APIVersionHeader: "2.0.0"}, wantStatus: http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen APIVersion
			handler := newTestMiddleware().VersionHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = GetVersionFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, CurrentVersion.String(), rec.Header().Get(CurrentVersionHeader))
			assert.Equal(t, GetVersionRange(), rec.Header().Get(SupportedVersionsHeader))

			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantVersion, seen)
				return
			}
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, errCodeIncompatible, body["errorCode"])
		})
	}
}
