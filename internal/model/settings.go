package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	MaxTargets = 10
	// MaxRequestsLimit keeps a day's schedule inside the day window at the
	// minimum one-minute spacing.
	MaxRequestsLimit = 500

	DefaultMinRequests = 1
	DefaultMaxRequests = 10
	DefaultMinQuantity = 1
	DefaultMaxQuantity = 8
)

// Settings is the operator-editable run configuration. It is re-read at the
// start of every cycle so edits apply from the next cycle on.
type Settings struct {
	Targets     []string `json:"targets"`
	MinRequests int      `json:"minRequests"`
	MaxRequests int      `json:"maxRequests"`
	MinQuantity int      `json:"minQuantity"`
	MaxQuantity int      `json:"maxQuantity"`
}

var ErrNoTargets = errors.New("no targets configured")

func DefaultSettings() Settings {
	return Settings{
		MinRequests: DefaultMinRequests,
		MaxRequests: DefaultMaxRequests,
		MinQuantity: DefaultMinQuantity,
		MaxQuantity: DefaultMaxQuantity,
	}
}

// Normalize trims target URLs, drops empty and duplicate entries and fills
// zero bounds with defaults.
func (s Settings) Normalize() Settings {
	out := s
	seen := make(map[string]struct{}, len(s.Targets))
	out.Targets = make([]string, 0, len(s.Targets))
	for _, t := range s.Targets {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out.Targets = append(out.Targets, t)
	}
	if out.MinRequests <= 0 {
		out.MinRequests = DefaultMinRequests
	}
	if out.MaxRequests <= 0 {
		out.MaxRequests = DefaultMaxRequests
	}
	if out.MinQuantity <= 0 {
		out.MinQuantity = DefaultMinQuantity
	}
	if out.MaxQuantity <= 0 {
		out.MaxQuantity = DefaultMaxQuantity
	}
	return out
}

// Validate checks bounds and URLs. An empty target list is valid here; the
// run controller rejects it with ErrNoTargets when a run is requested.
func (s Settings) Validate() error {
	if len(s.Targets) > MaxTargets {
		return fmt.Errorf("too many targets: %d (max %d)", len(s.Targets), MaxTargets)
	}
	for _, t := range s.Targets {
		u, err := url.Parse(t)
		if err != nil {
			return fmt.Errorf("invalid target url %q: %w", t, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid target url %q: must be absolute http(s)", t)
		}
	}
	if s.MinRequests <= 0 || s.MaxRequests <= 0 {
		return errors.New("request bounds must be > 0")
	}
	if s.MaxRequests > MaxRequestsLimit {
		return fmt.Errorf("maxRequests (%d) exceeds %d", s.MaxRequests, MaxRequestsLimit)
	}
	if s.MinRequests > s.MaxRequests {
		return fmt.Errorf("minRequests (%d) > maxRequests (%d)", s.MinRequests, s.MaxRequests)
	}
	if s.MinQuantity <= 0 || s.MaxQuantity <= 0 {
		return errors.New("quantity bounds must be > 0")
	}
	if s.MinQuantity > s.MaxQuantity {
		return fmt.Errorf("minQuantity (%d) > maxQuantity (%d)", s.MinQuantity, s.MaxQuantity)
	}
	return nil
}

func (s Settings) HasTarget(target string) bool {
	for _, t := range s.Targets {
		if t == target {
			return true
		}
	}
	return false
}

type EmailSettings struct {
	Enabled  bool   `json:"enabled"`
	Email    string `json:"email"`
	AuthCode string `json:"authCode,omitempty"`
}
