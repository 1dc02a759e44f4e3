package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h *Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := chi.NewRouter()
	h.Register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealth(t *testing.T) {
	t.Run("liveness", func(t *testing.T) {
		w, body := serve(t, New("test"), "/health/live")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "alive", body["status"])
	})

	t.Run("status reports environment", func(t *testing.T) {
		_, body := serve(t, New("staging"), "/health")
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "staging", body["environment"])
	})

	t.Run("readiness fails when a check fails and hides its error", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("database", func(context.Context) error { return nil })
		h.RegisterCheck("redis", func(context.Context) error { return errors.New("dial tcp 10.0.0.7:6379: refused") })

		w, body := serve(t, h, "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "not_ready", body["status"])
		checks := body["checks"].(map[string]any)
		assert.Equal(t, "up", checks["database"])
		assert.Equal(t, "down", checks["redis"])
		assert.NotContains(t, w.Body.String(), "10.0.0.7")
	})

	t.Run("readiness passes with healthy checks", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("database", func(ctx context.Context) error { return ctx.Err() })
		w, _ := serve(t, h, "/health/ready")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("registering a name again replaces the check", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("redis", func(context.Context) error { return errors.New("down") })
		h.RegisterCheck("redis", func(context.Context) error { return nil })

		w, body := serve(t, h, "/health/ready")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, body["checks"], 1)
	})
}
