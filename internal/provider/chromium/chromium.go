// Package chromium implements provider.Browser on a locally launched
// Chromium driven through go-rod.
package chromium

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"order_pacer/internal/config"
	"order_pacer/internal/logbus"
	"order_pacer/internal/provider"
)

// Browser lazily launches one Chromium process and opens an incognito
// context per session.
type Browser struct {
	cfg config.BrowserConfig
	bus *logbus.Bus

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	closed   bool
}

func New(cfg config.BrowserConfig, bus *logbus.Bus) *Browser {
	return &Browser{cfg: cfg, bus: bus}
}

var errClosed = errors.New("browser closed")

func (b *Browser) get() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errClosed
	}
	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().Headless(b.cfg.Headless()).NoSandbox(b.cfg.NoSandbox)
	if b.cfg.Bin != "" {
		l = l.Bin(b.cfg.Bin)
	}
	u, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	rb := rod.New().ControlURL(u)
	if err := rb.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect chromium: %w", err)
	}
	b.browser = rb
	b.launcher = l
	b.bus.Log("info", "chromium started", map[string]any{"headless": b.cfg.Headless()})
	return rb, nil
}

func (b *Browser) NewSession(ctx context.Context) (provider.Session, error) {
	rb, err := b.get()
	if err != nil {
		return nil, err
	}
	incognito, err := rb.Incognito()
	if err != nil {
		return nil, fmt.Errorf("open incognito: %w", err)
	}
	page, err := stealth.Page(incognito)
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: UserAgent(b.cfg.UserAgent)}); err != nil {
		_ = page.Close()
		_ = incognito.Close()
		return nil, fmt.Errorf("set user agent: %w", err)
	}
	return &session{incognito: incognito, page: page}, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	var firstErr error
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			firstErr = err
		}
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher = nil
	}
	return firstErr
}

type session struct {
	incognito *rod.Browser
	page      *rod.Page
	once      sync.Once
}

func (s *session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return p.WaitLoad()
}

// WaitIdle returns once the page has made no request for d. rod's waiter
// gives up silently when ctx ends, so the ctx error is the timeout signal.
func (s *session) WaitIdle(ctx context.Context, d time.Duration) error {
	wait := s.page.Context(ctx).WaitRequestIdle(d, nil, nil, nil)
	wait()
	return ctx.Err()
}

func (s *session) element(ctx context.Context, selector string) (*rod.Element, error) {
	p := s.page.Context(ctx)
	var (
		el  *rod.Element
		err error
	)
	if provider.IsXPath(selector) {
		el, err = p.ElementX(selector)
	} else {
		el, err = p.Element(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", selector, err)
	}
	return el, nil
}

func (s *session) WaitVisible(ctx context.Context, selector string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("wait visible %s: %w", selector, err)
	}
	return nil
}

func (s *session) Fill(ctx context.Context, selector, value string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (s *session) Select(ctx context.Context, selector, value string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	byValue := fmt.Sprintf(`option[value="%s"]`, value)
	if err := el.Select([]string{byValue}, true, rod.SelectorTypeCSSSector); err == nil {
		return nil
	}
	byText := "^" + regexp.QuoteMeta(value) + "$"
	if err := el.Select([]string{byText}, true, rod.SelectorTypeRegex); err != nil {
		return fmt.Errorf("select %q in %s: %w", value, selector, err)
	}
	return nil
}

func (s *session) Click(ctx context.Context, selector string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		_ = rod.Try(func() { _ = s.page.Close() })
		err = s.incognito.Close()
	})
	return err
}
