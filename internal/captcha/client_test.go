package captcha

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion/pkg/platform/circuit"
)

func newProvider(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient(t *testing.T) {
	t.Run("rejects invalid url", func(t *testing.T) {
		_, err := NewClient("::not a url", "secret")
		require.Error(t, err)
	})
	t.Run("rejects empty secret", func(t *testing.T) {
		_, err := NewClient("https://example.com/siteverify", "")
		require.Error(t, err)
	})
}

func TestVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("posts form and accepts success", func(t *testing.T) {
		srv := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "s3cret", r.PostForm.Get("secret"))
			assert.Equal(t, "tok", r.PostForm.Get("response"))
			assert.Equal(t, "203.0.113.7", r.PostForm.Get("remoteip"))
			_, _ = w.Write([]byte(`{"success":true}`))
		})
		reg := prometheus.NewRegistry()
		m := NewMetrics(reg)
		c, err := NewClient(srv.URL, "s3cret", WithMetrics(m))
		require.NoError(t, err)

		ok, err := c.Verify(ctx, "tok", "203.0.113.7")

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues(resultVerified)))
	})

	t.Run("provider rejection", func(t *testing.T) {
		srv := newProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
		})
		c, err := NewClient(srv.URL, "s3cret")
		require.NoError(t, err)

		ok, err := c.Verify(ctx, "tok", "")

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing token never calls provider", func(t *testing.T) {
		var calls atomic.Int32
		srv := newProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(`{"success":true}`))
		})
		c, err := NewClient(srv.URL, "s3cret")
		require.NoError(t, err)

		ok, err := c.Verify(ctx, "  ", "")

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, calls.Load())
	})

	t.Run("fails closed", func(t *testing.T) {
		cases := map[string]http.HandlerFunc{
			"non-2xx": func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			"malformed body": func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			"timeout": func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
				_, _ = w.Write([]byte(`{"success":true}`))
			},
		}
		for name, handler := range cases {
			t.Run(name, func(t *testing.T) {
				srv := newProvider(t, handler)
				c, err := NewClient(srv.URL, "s3cret", WithTimeout(50*time.Millisecond))
				require.NoError(t, err)

				ok, err := c.Verify(ctx, "tok", "")

				require.Error(t, err)
				assert.False(t, ok)
			})
		}
	})

	t.Run("circuit opens after repeated failures", func(t *testing.T) {
		var calls atomic.Int32
		srv := newProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})
		c, err := NewClient(srv.URL, "s3cret",
			WithBreaker(circuit.New("captcha", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))))
		require.NoError(t, err)

		for range 2 {
			ok, err := c.Verify(ctx, "tok", "")
			require.Error(t, err)
			assert.False(t, ok)
		}
		ok, err := c.Verify(ctx, "tok", "")

		assert.False(t, ok)
		assert.True(t, errors.Is(err, ErrCircuitOpen))
		assert.Equal(t, int32(2), calls.Load())
	})
}
