package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/tecnokaijin/storefront/internal/metrics"
	"github.com/tecnokaijin/storefront/internal/models"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
}

func TestCORSMiddleware(t *testing.T) {
	called := false
	h := CORSMiddleware("https://tienda.tecnokaijin.cl")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/products", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://tienda.tecnokaijin.cl", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	assert.True(t, called)
}

func TestErrorHandlerMiddlewareRecovers(t *testing.T) {
	h := ErrorHandlerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestCompressMiddleware(t *testing.T) {
	body := `{"message":"hola tecnokaijin"}`
	h := CompressMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))
	decoded, err := io.ReadAll(brotli.NewReader(rec.Body))
	require.NoError(t, err)
	assert.Equal(t, body, string(decoded))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, body, rec.Body.String())
}

func TestCompressSkipsNoContent(t *testing.T) {
	h := CompressMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Accept-Encoding", "br")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Zero(t, rec.Body.Len())
}

func TestAcceptsBrotli(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{"gzip", false},
		{"br", true},
		{"gzip, deflate, br", true},
		{"BR;q=0.5", true},
		{"br;q=0", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, acceptsBrotli(tt.header))
		})
	}
}

type fakeSessions map[string]int64

func (f fakeSessions) Resolve(token string) (int64, bool) {
	id, ok := f[token]
	return id, ok
}

type fakeUsers map[int64]*models.User

func (f fakeUsers) FindByID(ctx context.Context, id int64) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, models.ErrUserNotFound
}

func TestAuthMiddlewareAndGuards(t *testing.T) {
	sessions := fakeSessions{"admin-token": 1, "user-token": 2, "orphan-token": 9}
	users := fakeUsers{
		1: {ID: 1, Email: "admin@tecnokaijin.cl", Role: models.RoleAdmin},
		2: {ID: 2, Email: "user@tecnokaijin.cl", Role: models.RoleUser},
	}

	r := mux.NewRouter()
	r.Use(AuthMiddleware(sessions, users))
	r.HandleFunc("/me", RequireUser(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, CurrentUser(r.Context()).Email+" "+SessionToken(r.Context()))
	}))
	r.HandleFunc("/admin", RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(path, auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := do("/me", "Bearer user-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user@tecnokaijin.cl user-token", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do("/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do("/me", "Bearer nope").Code)
	assert.Equal(t, http.StatusUnauthorized, do("/me", "Basic user-token").Code)
	assert.Equal(t, http.StatusUnauthorized, do("/me", "Bearer orphan-token").Code)

	assert.Equal(t, http.StatusForbidden, do("/admin", "Bearer user-token").Code)
	assert.Equal(t, http.StatusOK, do("/admin", "bearer admin-token").Code)
	assert.JSONEq(t, `{"error":"authentication required"}`, do("/admin", "").Body.String())
}

func TestMetricsMiddlewareRecordsStatus(t *testing.T) {
	m, err := metrics.NewAppMetrics(noop.NewMeterProvider().Meter("test"), "storefront-test")
	require.NoError(t, err)

	r := mux.NewRouter()
	r.Use(MetricsMiddleware(m))
	r.HandleFunc("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/42", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
