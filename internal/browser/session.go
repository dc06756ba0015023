// Package browser wraps headless-Chrome page automation behind a narrow
// session capability so the crawl pipeline can be driven against a scripted
// fake in tests.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/maribox/rbg-live-dl/internal/common/config"
)

// ErrElementNotFound reports that a selector did not match any element
// within its wait timeout.
var ErrElementNotFound = errors.New("element not found")

// Anchor is one <a> element as harvested from a rendered page, in DOM
// order. Href is the raw href attribute; empty when the attribute is
// absent.
type Anchor struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// Session is the page-automation capability: one rendered page at a time,
// strictly sequential operations. Selectors are opaque CSS strings.
type Session interface {
	// Navigate opens the given URL and blocks until the load event.
	Navigate(url string) error

	// WaitForElement blocks until the selector matches a rendered element
	// or the timeout elapses, returning ErrElementNotFound on timeout.
	WaitForElement(selector string, timeout time.Duration) error

	// Text returns the visible text of the first matching element.
	Text(selector string, timeout time.Duration) (string, error)

	// Attribute returns the named attribute of the first matching element.
	// ok is false when the attribute is absent.
	Attribute(selector, name string, timeout time.Duration) (value string, ok bool, err error)

	// Click clicks the first matching element.
	Click(selector string, timeout time.Duration) error

	// SendKeys types the given text into the first matching element.
	SendKeys(selector, text string, timeout time.Duration) error

	// Anchors returns every anchor matching the selector, in DOM order.
	Anchors(selector string, timeout time.Duration) ([]Anchor, error)

	// Close releases the underlying browser. Safe to call more than once.
	Close()
}

// ChromeSession implements Session over a single chromedp tab.
type ChromeSession struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	log         *logrus.Logger
}

// NewChromeSession launches headless Chrome and opens one tab. Image and
// media requests are blocked; the crawl only needs the DOM.
func NewChromeSession(parent context.Context, cfg *config.PortalConfig, log *logrus.Logger) (*ChromeSession, error) {
	opts := chromedp.DefaultExecAllocatorOptions[:]
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Printf))

	err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetBlockedURLs([]string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.ts"}),
	)
	if err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &ChromeSession{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		log:         log,
	}, nil
}

func (s *ChromeSession) Navigate(url string) error {
	if err := chromedp.Run(s.ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *ChromeSession) WaitForElement(selector string, timeout time.Duration) error {
	return s.run(selector, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (s *ChromeSession) Text(selector string, timeout time.Duration) (string, error) {
	var text string
	err := s.run(selector, timeout, chromedp.Text(selector, &text, chromedp.ByQuery))
	return text, err
}

func (s *ChromeSession) Attribute(selector, name string, timeout time.Duration) (string, bool, error) {
	var value string
	var ok bool
	err := s.run(selector, timeout, chromedp.AttributeValue(selector, name, &value, &ok, chromedp.ByQuery))
	return value, ok, err
}

func (s *ChromeSession) Click(selector string, timeout time.Duration) error {
	return s.run(selector, timeout, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *ChromeSession) SendKeys(selector, text string, timeout time.Duration) error {
	return s.run(selector, timeout, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (s *ChromeSession) Anchors(selector string, timeout time.Duration) ([]Anchor, error) {
	// Query actions wait for at least one match, so a missing region still
	// surfaces as ErrElementNotFound rather than an empty slice.
	if err := s.WaitForElement(selector, timeout); err != nil {
		return nil, err
	}

	script := fmt.Sprintf(
		`[...document.querySelectorAll(%q)].map(a => ({href: a.getAttribute('href') || '', text: a.textContent || ''}))`,
		selector,
	)

	var anchors []Anchor
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &anchors)); err != nil {
		return nil, fmt.Errorf("failed to read anchors %s: %w", selector, err)
	}
	return anchors, nil
}

// run executes one query action against a timeout-bounded child context,
// translating deadline expiry into ErrElementNotFound.
func (s *ChromeSession) run(selector string, timeout time.Duration, action chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	if err := chromedp.Run(ctx, action); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && s.ctx.Err() == nil {
			return fmt.Errorf("%w: %s after %s", ErrElementNotFound, selector, timeout)
		}
		return fmt.Errorf("browser action on %s: %w", selector, err)
	}
	return nil
}

func (s *ChromeSession) Close() {
	s.cancelTab()
	s.cancelAlloc()
}
