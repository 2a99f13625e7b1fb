// Package pdf extracts text and identifiers from PDF documents and fetches
// PDFs from remote locations.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrNotPDF is returned when the remote resource is not served as a PDF.
	ErrNotPDF = errors.New("pdf: response is not a PDF")
	// ErrTooLarge is returned when the remote resource exceeds the size limit.
	ErrTooLarge = errors.New("pdf: file exceeds maximum size")
	// ErrFetchFailed is returned for network errors and non-2xx statuses.
	ErrFetchFailed = errors.New("pdf: fetch failed")
	// ErrPrivateNetwork is returned when the URL uses a scheme other than
	// http(s) or the connection would reach a non-public address.
	ErrPrivateNetwork = errors.New("pdf: request to private network denied")
)

// Fetched is a PDF retrieved from a URL.
type Fetched struct {
	Content  []byte
	FileName string
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Timeout   time.Duration
	MaxSize   int64
	UserAgent string
	// AllowPrivateNetworks disables the public-address check. Tests only.
	AllowPrivateNetworks bool
}

// Fetcher downloads PDFs for URL imports.
type Fetcher struct {
	client       *http.Client
	maxSize      int64
	userAgent    string
	allowPrivate bool
}

// NewFetcher creates a Fetcher, applying defaults of 30s, 50MB and a
// ScholarVault User-Agent.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 50 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ScholarVault/1.0"
	}

	f := &Fetcher{
		maxSize:      cfg.MaxSize,
		userAgent:    cfg.UserAgent,
		allowPrivate: cfg.AllowPrivateNetworks,
	}
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !cfg.AllowPrivateNetworks {
		dialer.Control = checkDialAddress
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Direct connections only, so the guarded address is the origin's.
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	f.client = &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("%w: too many redirects", ErrFetchFailed)
			}
			return checkScheme(req.URL)
		},
	}
	return f
}

// Fetch downloads the PDF at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Fetched, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %w", ErrFetchFailed, err)
	}
	if err := checkScheme(u); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrPrivateNetwork) {
			return nil, fmt.Errorf("fetch %s: %w", u.Hostname(), ErrPrivateNetwork)
		}
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrFetchFailed, resp.StatusCode)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/pdf" {
		return nil, fmt.Errorf("%w: Content-Type is %q", ErrNotPDF, resp.Header.Get("Content-Type"))
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}
	if int64(len(content)) > f.maxSize {
		return nil, fmt.Errorf("%w: exceeded %d bytes", ErrTooLarge, f.maxSize)
	}

	return &Fetched{
		Content:  content,
		FileName: fileNameFor(resp.Request.URL),
	}, nil
}

func checkScheme(u *url.URL) error {
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", ErrPrivateNetwork, u.Scheme)
	}
}

// checkDialAddress runs after name resolution, on the address about to be
// connected, for the first request and every redirect alike.
func checkDialAddress(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPrivateNetwork, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublicIP(ip) {
		return fmt.Errorf("%w: %s dials %s", ErrPrivateNetwork, network, host)
	}
	return nil
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() || ip.IsUnspecified())
}

// fileNameFor derives a .pdf file name from the final request URL.
func fileNameFor(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = "document"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}
