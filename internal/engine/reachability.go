package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrUnreachable = errors.New("target unreachable")

// Prober checks that a target page answers before a cycle is scheduled.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

type HTTPProber struct {
	client *resty.Client
}

func NewHTTPProber(timeout time.Duration, userAgent string) *HTTPProber {
	c := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	if userAgent != "" {
		c.SetHeader("User-Agent", userAgent)
	}
	return &HTTPProber{client: c}
}

// Probe issues a GET and treats transport errors and 4xx/5xx answers as
// unreachable.
func (p *HTTPProber) Probe(ctx context.Context, url string) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if body := resp.RawBody(); body != nil {
		_ = body.Close()
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode())
	}
	return nil
}
