package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"chatprobe/internal/dom"
)

// ErrLoginRequired is returned when the target redirects to a sign-in page
// and no one can complete it (headless).
var ErrLoginRequired = errors.New("login required")

var loginMarkers = []string{
	"login.microsoftonline.com",
	"login.live.com",
	"/adfs/",
	"sso",
	"saml",
	"oauth",
	"signin",
	"account.activedirectory",
}

// LooksLikeLogin reports whether url is a sign-in or SSO page.
func LooksLikeLogin(url string) bool {
	u := strings.ToLower(url)
	for _, m := range loginMarkers {
		if strings.Contains(u, m) {
			return true
		}
	}
	return false
}

// ReadyOptions control EnsureReady.
type ReadyOptions struct {
	Target   string
	Headless bool
	// AllowLoginRequired makes a headless login wall a result rather than an
	// error.
	AllowLoginRequired bool
	NavTimeout         time.Duration
	SettleDelay        time.Duration
	LoginTimeout       time.Duration
	LoginPoll          time.Duration
}

// EnsureReady opens the target and gets past any sign-in. With a visible
// browser it waits for the user to finish signing in. It reports whether a
// login wall was found and left in place.
func EnsureReady(ctx context.Context, page dom.Page, opts ReadyOptions, log *zap.Logger) (bool, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if opts.LoginPoll <= 0 {
		opts.LoginPoll = 2 * time.Second
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = 5 * time.Minute
	}

	nctx, cancel := ctx, context.CancelFunc(func() {})
	if opts.NavTimeout > 0 {
		nctx, cancel = context.WithTimeout(ctx, opts.NavTimeout)
	}
	err := page.Navigate(nctx, opts.Target)
	cancel()
	if err != nil {
		return false, fmt.Errorf("navigate to %s: %w", opts.Target, err)
	}

	if err := pause(ctx, opts.SettleDelay); err != nil {
		return false, err
	}

	url, err := page.URL(ctx)
	if err != nil {
		return false, fmt.Errorf("read page url: %w", err)
	}
	if LooksLikeLogin(url) {
		if opts.Headless {
			if opts.AllowLoginRequired {
				return true, nil
			}
			return true, fmt.Errorf("%w: redirected to %s in headless mode; run the login command first", ErrLoginRequired, url)
		}

		log.Info("Please complete SSO in the opened browser window.")
		log.Info("Waiting for you to return to the chat...")
		if err := waitForLogin(ctx, page, opts); err != nil {
			return true, err
		}
	}

	return false, pause(ctx, opts.SettleDelay)
}

func waitForLogin(ctx context.Context, page dom.Page, opts ReadyOptions) error {
	deadline := time.NewTimer(opts.LoginTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(opts.LoginPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: still on the sign-in page after %s", ErrLoginRequired, opts.LoginTimeout)
		case <-ticker.C:
			url, err := page.URL(ctx)
			if err == nil && !LooksLikeLogin(url) {
				return nil
			}
		}
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
