package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("<html></html>"))
	}))
	p := NewHTTPProber(2*time.Second, "order-pacer-test")

	require.NoError(t, p.Probe(context.Background(), srv.URL+"/landing"))

	err := p.Probe(context.Background(), srv.URL+"/gone")
	require.ErrorIs(t, err, ErrUnreachable)
	assert.Contains(t, err.Error(), "503")

	srv.Close()
	require.ErrorIs(t, p.Probe(context.Background(), srv.URL+"/landing"), ErrUnreachable)
}
