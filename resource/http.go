package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	// DefaultHTTPTimeout bounds a single navigation of the http driver
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultUserAgent is sent by the http driver when none is configured
	DefaultUserAgent = "op-narrator"

	// maxPageSize caps how much of a response body is kept as page source
	maxPageSize = 10 << 20
)

// HTTPSessionConfig configures the headless http driver
type HTTPSessionConfig struct {
	Timeout   time.Duration
	UserAgent string
	Transport http.RoundTripper // Optional, defaults to http.DefaultTransport
}

var (
	_ Resource    = (*HTTPSession)(nil)
	_ Snapshotter = (*HTTPSession)(nil)
)

// HTTPSession is a headless browser-like session. It keeps cookies between
// navigations and exposes the last page it loaded.
type HTTPSession struct {
	client    *http.Client
	userAgent string
	closed    bool

	url    string
	status int
	source []byte
	title  string
}

// NewHTTPSession creates a new http driver session
func NewHTTPSession(cfg HTTPSessionConfig) (*HTTPSession, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &HTTPSession{
		client: &http.Client{
			Jar:       jar,
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		userAgent: cfg.UserAgent,
	}, nil
}

// Open implements Resource
func (s *HTTPSession) Open(ctx context.Context, url string) error {
	if s.closed {
		return errors.New("session is closed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", url, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", url, err)
	}

	s.url = resp.Request.URL.String()
	s.status = resp.StatusCode
	s.source = body
	s.title = extractTitle(body)
	return nil
}

// CurrentURL implements Resource
func (s *HTTPSession) CurrentURL() string {
	return s.url
}

// StatusCode implements Resource
func (s *HTTPSession) StatusCode() int {
	return s.status
}

// Title implements Resource
func (s *HTTPSession) Title() string {
	return s.title
}

// PageSource implements Resource
func (s *HTTPSession) PageSource() string {
	return string(s.source)
}

// Snapshot returns the current page source; a headless session has nothing
// better to capture.
func (s *HTTPSession) Snapshot() ([]byte, string, error) {
	if s.source == nil {
		return nil, "", nil
	}
	data := make([]byte, len(s.source))
	copy(data, s.source)
	return data, ".html", nil
}

// Close implements Resource
func (s *HTTPSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.client.CloseIdleConnections()
	return nil
}

// extractTitle returns the text of the first <title> element
func extractTitle(page []byte) string {
	z := html.NewTokenizer(bytes.NewReader(page))
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			inTitle = string(name) == "title"
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(z.Text()))
			}
		case html.EndTagToken:
			inTitle = false
		}
	}
}
