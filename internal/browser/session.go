package browser

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"faqharvest/internal/faults"
)

// WaitCondition selects how Navigate decides the page has finished
// loading. Conditions are ordered from strict to loose; the navigator
// escalates through them when a strict one keeps timing out.
type WaitCondition string

const (
	// WaitDOMStable waits for the DOM to stop mutating.
	WaitDOMStable WaitCondition = "dom-stable"
	// WaitRequestIdle waits for the network to go idle ignoring media
	// and image requests, so a straggling banner does not block us.
	WaitRequestIdle WaitCondition = "request-idle"
	// WaitNetworkIdle waits for a fully idle page.
	WaitNetworkIdle WaitCondition = "network-idle"
	// WaitLoadEvent waits for the raw window load event only.
	WaitLoadEvent WaitCondition = "load"
)

// EscalationOrder is the default strict-to-loose condition sequence.
func EscalationOrder() []WaitCondition {
	return []WaitCondition{WaitDOMStable, WaitRequestIdle, WaitNetworkIdle, WaitLoadEvent}
}

// Session is the one shared, exclusively-owned browser resource. All
// navigation and DOM work goes through a single page; Recycle is the
// only remedy for a wedged context.
type Session struct {
	cfg     Config
	browser *Browser
	page    *rod.Page
	ua      string
	log     *log.Logger
}

// NewSession launches a browser and opens the session page.
func NewSession(cfg Config, logger *log.Logger) (*Session, error) {
	s := &Session{cfg: cfg, log: logger}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) open() error {
	b, err := New(s.cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", faults.ErrSessionUnusable, err)
	}
	page, err := b.NewPage()
	if err != nil {
		b.Close()
		return fmt.Errorf("%w: %v", faults.ErrSessionUnusable, err)
	}

	// Mask the webdriver flag before any document runs.
	_, _ = page.EvalOnNewDocument(`Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`)

	s.browser = b
	s.page = page
	if s.ua != "" {
		if err := s.SetUserAgent(s.ua); err != nil {
			return err
		}
	}
	return nil
}

// Recycle tears the whole browser context down and relaunches it. The
// previous user agent is re-applied so attempt-level rotation survives
// a recovery. When the relaunch fails the session stays unusable and
// every subsequent call reports ErrSessionUnusable.
func (s *Session) Recycle() error {
	s.log.Warn("recycling browser context")
	s.Close()
	return s.open()
}

// alive guards every page operation: after a failed relaunch the page
// is gone and calling into rod would dereference nil.
func (s *Session) alive() error {
	if s.page == nil {
		return faults.ErrSessionUnusable
	}
	return nil
}

// Close releases the page and browser. Safe to call more than once.
func (s *Session) Close() {
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	if s.browser != nil {
		_ = s.browser.Close()
		s.browser = nil
	}
}

// SetUserAgent overrides the client signature for subsequent requests.
func (s *Session) SetUserAgent(ua string) error {
	s.ua = ua
	if err := s.alive(); err != nil {
		return err
	}
	return s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua})
}

// Navigate drives the page to url and applies the wait condition, both
// under the given timeout.
func (s *Session) Navigate(url string, cond WaitCondition, timeout time.Duration) error {
	if err := s.alive(); err != nil {
		return err
	}
	page := s.page.Timeout(timeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return s.applyWait(page, cond, timeout)
}

func (s *Session) applyWait(page *rod.Page, cond WaitCondition, timeout time.Duration) error {
	switch cond {
	case WaitDOMStable:
		if err := page.WaitDOMStable(300*time.Millisecond, 0); err != nil {
			return fmt.Errorf("wait %s: %w", cond, err)
		}
	case WaitRequestIdle:
		wait := page.WaitRequestIdle(500*time.Millisecond, nil, nil,
			[]proto.NetworkResourceType{proto.NetworkResourceTypeImage, proto.NetworkResourceTypeMedia})
		wait()
	case WaitNetworkIdle:
		if err := page.WaitIdle(timeout); err != nil {
			return fmt.Errorf("wait %s: %w", cond, err)
		}
	case WaitLoadEvent:
		if err := page.WaitLoad(); err != nil {
			return fmt.Errorf("wait %s: %w", cond, err)
		}
	default:
		return fmt.Errorf("unknown wait condition: %s", cond)
	}
	return nil
}

// Eval runs a script in the page and returns its JSON value.
func (s *Session) Eval(js string) (gson.JSON, error) {
	if err := s.alive(); err != nil {
		return gson.New(nil), err
	}
	obj, err := s.page.Timeout(10 * time.Second).Eval(js)
	if err != nil {
		return gson.New(nil), fmt.Errorf("eval failed: %w", err)
	}
	return s.page.ObjectToJSON(obj)
}

// Click clicks the element matching selector. A native input click is
// tried first; synthetic-event dispatch is the fallback for elements
// that sit under overlay layers.
func (s *Session) Click(selector string) error {
	if err := s.alive(); err != nil {
		return err
	}
	el, err := s.page.Timeout(5 * time.Second).Element(selector)
	if err == nil {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
			return nil
		}
	}

	result, err := s.Eval(fmt.Sprintf(`() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.click();
		return true;
	}`, selector))
	if err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	if !result.Bool() {
		return fmt.Errorf("%w: %s", faults.ErrNotFound, selector)
	}
	return nil
}

// CaptureHTML returns the full document markup.
func (s *Session) CaptureHTML() (string, error) {
	result, err := s.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("failed to capture HTML: %w", err)
	}
	return result.Str(), nil
}

// Screenshot captures the current viewport as PNG.
func (s *Session) Screenshot() ([]byte, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	return s.page.Timeout(10 * time.Second).Screenshot(false, nil)
}

// Location returns the resolved URL and title of the current page.
func (s *Session) Location() (url, title string, err error) {
	if err := s.alive(); err != nil {
		return "", "", err
	}
	info, err := s.page.Info()
	if err != nil {
		return "", "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.URL, info.Title, nil
}
