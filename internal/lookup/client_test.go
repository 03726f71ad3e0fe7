package lookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wserrors "ipgeo-ws/pkg/errors"
)

func TestClient_URL(t *testing.T) {
	c := NewClient("https://example.test/geo", time.Second)
	assert.Equal(t, "https://example.test/geo/ipinfo?ip=8.8.8.8", c.URL("ipinfo", "8.8.8.8"))
	assert.Equal(t, "https://example.test/geo", c.BaseURL())

	tests := []struct {
		ip   string
		want string
	}{
		{"1.1.1.1 2", "https://example.test/geo/ipinfo?ip=1.1.1.1%202"},
		{`"<x>'`, "https://example.test/geo/ipinfo?ip=%22%3Cx%3E%27"},
		{"a&b=c", "https://example.test/geo/ipinfo?ip=a&b=c"},
		{"::1%25", "https://example.test/geo/ipinfo?ip=::1%25"},
		{"é\t", "https://example.test/geo/ipinfo?ip=%C3%A9%09"},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, c.URL("ipinfo", tt.ip))
		})
	}
}

func TestClient_FetchEscapesRequestLine(t *testing.T) {
	var gotURI, gotIP atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI.Store(r.RequestURI)
		gotIP.Store(r.URL.Query().Get("ip"))
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	data, err := NewClient(srv.URL, 5*time.Second).Fetch(context.Background(), "ipinfo", "1.1.1.1 2")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
	assert.Equal(t, "/ipinfo?ip=1.1.1.1%202", gotURI.Load())
	assert.Equal(t, "1.1.1.1 2", gotIP.Load())
}

func TestClient_FetchPassesBodyThrough(t *testing.T) {
	var gotPath, gotIP atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		gotIP.Store(r.URL.Query().Get("ip"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"country":"US","asn":15169}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, 5*time.Second)
	data, err := c.Fetch(context.Background(), "nordvpn", "1.2.3.4")
	require.NoError(t, err)
	assert.JSONEq(t, `{"country":"US","asn":15169}`, string(data))
	assert.Equal(t, "/nordvpn", gotPath.Load())
	assert.Equal(t, "1.2.3.4", gotIP.Load())
}

func TestClient_FetchNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL, 5*time.Second).Fetch(context.Background(), "ipinfo", "8.8.8.8")
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.False(t, errors.Is(err, wserrors.ErrUpstream))
}

func TestClient_FetchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Fetch(context.Background(), "ipinfo", "8.8.8.8")
	var rerr *RequestError
	require.True(t, errors.As(err, &rerr))
	assert.True(t, errors.Is(err, wserrors.ErrUpstream))
}

func TestClient_FetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	_, err := NewClient(srv.URL, 50*time.Millisecond).Fetch(context.Background(), "ipinfo", "8.8.8.8")
	assert.True(t, errors.Is(err, wserrors.ErrUpstream))
}
