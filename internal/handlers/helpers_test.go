package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newTestRequest creates an HTTP request with a JSON body
func newTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withAdmin adds admin claims to the request context
func withAdmin(req *http.Request, subject string) *http.Request {
	claims := &models.AdminClaims{
		Role:             auth.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
	return req.WithContext(context.WithValue(req.Context(), auth.ClaimsContextKey, claims))
}

// serveRoute routes req through a chi router so URL params resolve
func serveRoute(method, pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// assertJSONResponse checks status and content type and decodes the body
func assertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "response status mismatch: %s", w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	if target != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), target))
	}
}

// mockEventTracker records tracked events
type mockEventTracker struct {
	TrackEventFunc func(ctx context.Context, eventType models.EventType, metadata models.EventMetadata) (*models.SecurityEvent, error)
	tracked        []models.EventType
	metadata       []models.EventMetadata
}

func (m *mockEventTracker) TrackEvent(ctx context.Context, eventType models.EventType, metadata models.EventMetadata) (*models.SecurityEvent, error) {
	m.tracked = append(m.tracked, eventType)
	m.metadata = append(m.metadata, metadata)
	if m.TrackEventFunc != nil {
		return m.TrackEventFunc(ctx, eventType, metadata)
	}
	return &models.SecurityEvent{Type: eventType, Severity: eventType.Severity(), Metadata: metadata}, nil
}
