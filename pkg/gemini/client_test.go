package gemini

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"waenhancer/internal/errors"
	"waenhancer/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return l
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestGenerateContent_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Sure, see you at 5"}]}}]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, quietLogger(), WithHTTPClient(srv.Client()))
	text, err := client.GenerateContent(context.Background(), "key-1", "gemini-pro", "reply politely")

	require.NoError(t, err)
	assert.Equal(t, "Sure, see you at 5", text)
	assert.Equal(t, "/v1/models/gemini-pro:generateContent", gotPath)
	assert.Equal(t, "key-1", gotKey)

	expected := map[string]interface{}{
		"contents": []interface{}{
			map[string]interface{}{
				"parts": []interface{}{map[string]interface{}{"text": "reply politely"}},
			},
		},
	}
	assert.Equal(t, expected, gotBody)
}

func TestGenerateContent_EmptyKeyMakesNoCall(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{}`)
	client := NewClient(srv.URL, time.Second, quietLogger())

	_, err := client.GenerateContent(context.Background(), "  ", "", "hello")

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfiguration, errors.GetCode(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestGenerateContent_FormatErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing candidates", `{"promptFeedback":{"blockReason":"SAFETY"}}`},
		{"empty candidates", `{"candidates":[]}`},
		{"missing content", `{"candidates":[{"finishReason":"SAFETY"}]}`},
		{"missing text", `{"candidates":[{"content":{"parts":[{}]}}]}`},
		{"not json", `<html>oops</html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := newTestServer(t, http.StatusOK, tt.body)
			client := NewClient(srv.URL, time.Second, quietLogger())

			_, err := client.GenerateContent(context.Background(), "key", "gemini-pro", "hi")

			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeFormat, errors.GetCode(err))
			assert.Equal(t, tt.body, string(errors.GetRaw(err)))
			assert.Equal(t, int32(1), atomic.LoadInt32(calls))
		})
	}
}

func TestGenerateContent_HTTPErrorIsNetworkError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusForbidden, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
	client := NewClient(srv.URL, time.Second, quietLogger())

	_, err := client.GenerateContent(context.Background(), "bad", "gemini-pro", "hi")

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNetwork, errors.GetCode(err))
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestGenerateContent_TransportFailure(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	client := NewClient(url, time.Second, quietLogger())
	_, err := client.GenerateContent(context.Background(), "key", "gemini-pro", "hi")

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNetwork, errors.GetCode(err))
}

func TestGenerateContent_BreakerOpensOnNetworkErrorsOnly(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusInternalServerError, `{}`)
	breaker := circuitbreaker.New("gemini", 2, time.Minute, quietLogger(),
		circuitbreaker.WithCountable(CountsAsFailure))
	client := NewClient(srv.URL, time.Second, quietLogger(), WithBreaker(breaker))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := client.GenerateContent(ctx, "key", "", "hi")
		require.Error(t, err)
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.GetState())

	_, err := client.GenerateContent(ctx, "key", "", "hi")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNetwork, errors.GetCode(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, 2, appErr.Context["breaker_failures"])
	assert.Equal(t, uint64(1), appErr.Context["breaker_rejected"])
}

func TestGenerateContent_FormatErrorDoesNotTripBreaker(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"nope":true}`)
	breaker := circuitbreaker.New("gemini", 1, time.Minute, quietLogger(),
		circuitbreaker.WithCountable(CountsAsFailure))
	client := NewClient(srv.URL, time.Second, quietLogger(), WithBreaker(breaker))

	_, err := client.GenerateContent(context.Background(), "key", "", "hi")

	assert.Equal(t, errors.ErrCodeFormat, errors.GetCode(err))
	assert.Equal(t, circuitbreaker.StateClosed, breaker.GetState())
}

func TestFirstText(t *testing.T) {
	text := "x"
	r := GenerateContentResponse{Candidates: []Candidate{{Content: &Content{Parts: []Part{{Text: &text}}}}}}
	got, ok := r.FirstText()
	assert.True(t, ok)
	assert.Equal(t, "x", got)

	empty := GenerateContentResponse{}
	_, ok = empty.FirstText()
	assert.False(t, ok)
}
