package pdf

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(maxSize int64) *Fetcher {
	return NewFetcher(FetcherConfig{
		Timeout:              5 * time.Second,
		MaxSize:              maxSize,
		AllowPrivateNetworks: true,
	})
}

func TestNewFetcher_Defaults(t *testing.T) {
	f := NewFetcher(FetcherConfig{})
	assert.Equal(t, int64(50<<20), f.maxSize)
	assert.Equal(t, "ScholarVault/1.0", f.userAgent)
	assert.Equal(t, 30*time.Second, f.client.Timeout)
	assert.False(t, f.allowPrivate)
}

func TestFetcher_Fetch(t *testing.T) {
	t.Run("downloads pdf", func(t *testing.T) {
		var gotUA string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUA = r.Header.Get("User-Agent")
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4 fake"))
		}))
		defer server.Close()

		got, err := newTestFetcher(0).Fetch(context.Background(), server.URL+"/papers/attention.pdf")
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF-1.4 fake"), got.Content)
		assert.Equal(t, "attention.pdf", got.FileName)
		assert.Equal(t, "ScholarVault/1.0", gotUA)
	})

	t.Run("names extensionless paths", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf; charset=binary")
			_, _ = w.Write([]byte("%PDF"))
		}))
		defer server.Close()

		got, err := newTestFetcher(0).Fetch(context.Background(), server.URL+"/download/42")
		require.NoError(t, err)
		assert.Equal(t, "42.pdf", got.FileName)
	})

	t.Run("rejects non pdf content type", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		}))
		defer server.Close()

		_, err := newTestFetcher(0).Fetch(context.Background(), server.URL)
		assert.ErrorIs(t, err, ErrNotPDF)
	})

	t.Run("rejects oversized body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write(make([]byte, 64))
		}))
		defer server.Close()

		_, err := newTestFetcher(32).Fetch(context.Background(), server.URL)
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("non 2xx status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := newTestFetcher(0).Fetch(context.Background(), server.URL)
		assert.ErrorIs(t, err, ErrFetchFailed)
		assert.Contains(t, err.Error(), "HTTP 404")
	})
}

func TestFetcher_RejectsPrivateTargets(t *testing.T) {
	f := NewFetcher(FetcherConfig{Timeout: time.Second})

	tests := []string{
		"http://127.0.0.1/paper.pdf",
		"http://10.0.0.8/paper.pdf",
		"http://[::1]/paper.pdf",
	}
	for _, u := range tests {
		t.Run(u, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), u)
			assert.ErrorIs(t, err, ErrPrivateNetwork)
		})
	}
}

func TestFetcher_ChecksConnectedAddress(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer server.Close()

	_, port, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)

	// localhost only turns into a loopback address at dial time.
	f := NewFetcher(FetcherConfig{Timeout: time.Second})
	_, err = f.Fetch(context.Background(), "http://localhost:"+port+"/paper.pdf")
	assert.ErrorIs(t, err, ErrPrivateNetwork)
	assert.NotErrorIs(t, err, ErrFetchFailed)
	assert.Zero(t, hits)
}

func TestCheckDialAddress(t *testing.T) {
	tests := []struct {
		address string
		allowed bool
	}{
		{"93.184.216.34:443", true},
		{"[2606:2800:220:1::]:443", true},
		{"127.0.0.1:80", false},
		{"10.1.2.3:80", false},
		{"192.168.0.10:8080", false},
		{"169.254.169.254:80", false},
		{"[::1]:443", false},
		{"[fe80::1]:443", false},
		{"0.0.0.0:80", false},
		{"not-an-address", false},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			err := checkDialAddress("tcp", tt.address, nil)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrPrivateNetwork)
			}
		})
	}
}

func TestFetcher_RejectsScheme(t *testing.T) {
	_, err := newTestFetcher(0).Fetch(context.Background(), "file:///etc/passwd")
	assert.ErrorIs(t, err, ErrPrivateNetwork)
}
