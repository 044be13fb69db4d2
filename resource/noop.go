package resource

import (
	"context"
	"net/http"
)

var _ Resource = (*NoopSession)(nil)

// NoopSession records navigations without performing any I/O. It backs
// dry runs that only validate plans and scheduling.
type NoopSession struct {
	History []string
	closed  bool
}

// NewNoopSession creates a new noop session
func NewNoopSession() *NoopSession {
	return &NoopSession{}
}

func (s *NoopSession) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.History = append(s.History, url)
	return nil
}

func (s *NoopSession) CurrentURL() string {
	if len(s.History) == 0 {
		return ""
	}
	return s.History[len(s.History)-1]
}

func (s *NoopSession) StatusCode() int {
	if len(s.History) == 0 {
		return 0
	}
	return http.StatusOK
}

func (s *NoopSession) Title() string      { return "" }
func (s *NoopSession) PageSource() string { return "" }

func (s *NoopSession) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close has been called
func (s *NoopSession) Closed() bool {
	return s.closed
}
