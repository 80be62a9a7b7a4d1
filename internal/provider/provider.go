// Package provider defines the browser contract the submission executor
// drives. Implementations live in subpackages.
package provider

import (
	"context"
	"time"
)

// Browser hands out isolated sessions. Every session gets its own cookie
// jar and storage so submissions never share state.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Session is one isolated tab. Selectors starting with "/" or "(" are XPath,
// anything else is CSS. Each call is bounded by ctx.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitIdle blocks until the page has issued no network request for d,
	// or ctx ends, in which case it returns ctx.Err(). Callers treat that as
	// soft.
	WaitIdle(ctx context.Context, d time.Duration) error
	WaitVisible(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	// Select picks the option whose value (or, failing that, visible text)
	// equals value.
	Select(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Close() error
}

func IsXPath(selector string) bool {
	return len(selector) > 0 && (selector[0] == '/' || selector[0] == '(')
}
