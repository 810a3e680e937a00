// Package browser owns the shared headless Chrome session. The session is
// created once per run and reused across rows so the target site's cookies
// and dialog state stay consistent; if it cannot be created the harvest still
// runs and drivers launch their own browser per row.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls session creation.
type Config struct {
	Headless   bool
	NavTimeout time.Duration
	UserAgent  string
	// ExtraHeaders are applied to every navigation, e.g. Accept-Language.
	ExtraHeaders map[string]string
}

// Session wraps a long-lived chromedp browser context.
type Session struct {
	cfg         Config
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
	closeOnce   sync.Once
}

// New launches the shared browser. The returned session stays alive until
// Close.
func New(cfg Config) (*Session, error) {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	// Start the browser now so a missing Chrome binary is a startup
	// condition, not a per-row surprise.
	if err := chromedp.Run(browserCtx); err != nil {
		browserStop()
		allocCancel()
		return nil, fmt.Errorf("launch shared browser: %w", err)
	}

	return &Session{
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		browserStop: browserStop,
	}, nil
}

// NewTab derives a tab context (sharing the browser's cookies and cache) with
// the configured navigation timeout applied. The returned cancel must be
// called when the row is done.
func (s *Session) NewTab(ctx context.Context) (context.Context, context.CancelFunc) {
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	timeoutCtx, timeoutCancel := context.WithTimeout(tabCtx, s.cfg.NavTimeout)

	stop := context.AfterFunc(ctx, timeoutCancel)
	return timeoutCtx, func() {
		stop()
		timeoutCancel()
		tabCancel()
	}
}

// SetupAction returns the network preamble drivers run before navigating:
// enables the network domain and applies the configured extra headers.
func (s *Session) SetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if len(s.cfg.ExtraHeaders) > 0 {
			headers := network.Headers{}
			for k, v := range s.cfg.ExtraHeaders {
				headers[k] = v
			}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// Close tears the browser down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.browserStop()
		s.allocCancel()
	})
}

// TryNew launches the shared session, logging instead of failing when the
// environment has no usable Chrome. Callers pass the nil session through to
// drivers, which then create their own per row.
func TryNew(cfg Config, logger *zap.Logger) *Session {
	session, err := New(cfg)
	if err != nil {
		logger.Warn("shared browser unavailable, drivers will launch per-row browsers", zap.Error(err))
		return nil
	}
	logger.Info("launched shared browser", zap.Bool("headless", cfg.Headless))
	return session
}
