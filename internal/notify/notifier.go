package notify

import (
	"context"
	"errors"
)

// Notifier delivers a human-readable message to the operator channel.
// Callers log a returned error and carry on.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type SubmissionEvent struct {
	At       int64  `json:"atMs"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Quantity int    `json:"quantity"`
	Attempts int    `json:"attempts,omitempty"`
}

// SubmissionSink receives successful submissions for batched reporting.
type SubmissionSink interface {
	NotifySubmitted(ctx context.Context, evt SubmissionEvent)
}

type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

func (Nop) NotifySubmitted(context.Context, SubmissionEvent) {}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
