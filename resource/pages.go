package resource

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Pages keeps track of where a run's navigation starts and resolves
// relative paths against it.
type Pages struct {
	res            Resource
	defaultBaseURL string
	baseURL        string // Configured override, wins over the default when set
}

// NewPages creates a navigation helper for the resource
func NewPages(res Resource, defaultBaseURL string) *Pages {
	return &Pages{res: res, defaultBaseURL: defaultBaseURL}
}

// SetDefaultBaseURL sets the URL where runs start when no override is configured
func (p *Pages) SetDefaultBaseURL(u string) {
	p.defaultBaseURL = u
}

// OverrideBaseURL sets a base URL that takes precedence over the default
func (p *Pages) OverrideBaseURL(u string) {
	p.baseURL = u
}

// BaseURL returns the effective base URL
func (p *Pages) BaseURL() string {
	if p.baseURL != "" {
		return p.baseURL
	}
	return p.defaultBaseURL
}

// Resource returns the resource the helper navigates with
func (p *Pages) Resource() Resource {
	return p.res
}

// OpenHomePage opens the base URL
func (p *Pages) OpenHomePage(ctx context.Context) error {
	home := p.BaseURL()
	if home == "" {
		return errors.New("no base url configured")
	}
	return p.res.Open(ctx, home)
}

// Open navigates to target, resolving it against the base URL when relative
func (p *Pages) Open(ctx context.Context, target string) error {
	resolved, err := p.Resolve(target)
	if err != nil {
		return err
	}
	return p.res.Open(ctx, resolved)
}

// Resolve turns target into an absolute URL
func (p *Pages) Resolve(target string) (string, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid target %q: %w", target, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base := p.BaseURL()
	if base == "" {
		return "", fmt.Errorf("cannot resolve relative target %q without a base url", target)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}
