package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"permitwatch/internal/browser"
	"permitwatch/internal/config"
	"permitwatch/internal/diag"
	"permitwatch/internal/locator"
)

// SessionState tracks where a session is in its lifecycle.
type SessionState string

const (
	StateAnonymous      SessionState = "anonymous"
	StateAuthenticating SessionState = "authenticating"
	StateAuthenticated  SessionState = "authenticated"
	StateExpired        SessionState = "expired"
	StateFailed         SessionState = "failed"
)

// Session is ephemeral, owned by the controller for the lifetime of one run.
type Session struct {
	ID        string
	State     SessionState
	StartedAt time.Time
}

// SessionController drives the login state machine. Login is attempted once
// per run; there are no retries at this layer — the caller may restart the
// whole pipeline.
type SessionController struct {
	page     browser.Page
	resolver *locator.Resolver
	// probe resolves optional controls without emitting diagnostics; an
	// absent login-mode selector is a portal variant, not a failure.
	probe    *locator.Resolver
	diag     diag.Sink
	log      *zap.Logger
	portal   config.PortalConfig
	controls config.ControlsConfig
	scrape   config.ScrapeConfig
}

func NewSessionController(page browser.Page, sink diag.Sink, log *zap.Logger, cfg config.Config) *SessionController {
	return &SessionController{
		page:     page,
		resolver: locator.NewResolver(page, sink, log),
		probe:    locator.NewResolver(page, diag.NopSink{}, zap.NewNop()),
		diag:     sink,
		log:      log,
		portal:   cfg.Portal,
		controls: cfg.Controls,
		scrape:   cfg.Scrape,
	}
}

func selectorStrategies(selectors []string) []locator.Strategy {
	out := make([]locator.Strategy, 0, len(selectors))
	for _, s := range selectors {
		out = append(out, locator.FromSelector(s))
	}
	return out
}

// Login walks the portal's login flow: entry page, optional public-mode
// selector, credential fill, submit, marker check, and a revalidation
// navigation that catches silent bounce-back to the login view.
func (c *SessionController) Login(ctx context.Context, creds config.Credentials) (*Session, error) {
	session := &Session{ID: uuid.NewString(), State: StateAnonymous, StartedAt: time.Now()}

	navCtx, cancel := context.WithTimeout(ctx, c.scrape.GetNavigationTimeout())
	defer cancel()
	if err := c.page.Navigate(navCtx, c.portal.LoginURL()); err != nil {
		session.State = StateFailed
		c.diag.Capture("01_login_load_failed", c.page.Screenshot(), c.page.HTML())
		return session, fmt.Errorf("load login page: %w", err)
	}
	session.State = StateAuthenticating

	if err := c.selectLoginMode(); err != nil {
		session.State = StateFailed
		return session, err
	}

	if err := c.fillCredentials(creds); err != nil {
		session.State = StateFailed
		return session, err
	}

	if err := c.submit(ctx); err != nil {
		session.State = StateFailed
		return session, err
	}

	if err := c.confirmOutcome(); err != nil {
		session.State = StateFailed
		return session, err
	}

	if err := c.revalidate(ctx); err != nil {
		session.State = StateExpired
		return session, err
	}

	session.State = StateAuthenticated
	c.log.Info("login complete", zap.String("session_id", session.ID))
	return session, nil
}

// selectLoginMode picks the public login path when the portal exposes a
// mode selector. Portals without one skip this step.
func (c *SessionController) selectLoginMode() error {
	d := locator.Descriptor{
		Control: "login_mode",
		Strategies: append(
			selectorStrategies(c.controls.LoginMode),
			locator.ByOption(c.controls.LoginModeOption),
		),
	}
	el, err := c.probe.Resolve(d, locator.Interactable)
	if err != nil {
		var notFound *locator.NotFoundError
		if errors.As(err, &notFound) {
			c.log.Debug("no login-mode selector on page, continuing")
			return nil
		}
		return err
	}
	if err := el.SelectOption(c.controls.LoginModeOption); err != nil {
		c.diag.Capture("02_login_mode_failed", c.page.Screenshot(), c.page.HTML())
		return fmt.Errorf("select login mode %q: %w", c.controls.LoginModeOption, err)
	}
	return nil
}

// resolveInteractable finds a control that must be usable right now. A
// control that exists only hidden/disabled is a distinct failure mode from
// one that is absent.
func (c *SessionController) resolveInteractable(d locator.Descriptor) (browser.Element, error) {
	el, err := c.resolver.Resolve(d, locator.Interactable)
	if err == nil {
		return el, nil
	}

	var notFound *locator.NotFoundError
	if errors.As(err, &notFound) {
		// Present but occluded?
		if _, probeErr := c.probe.Resolve(d, locator.Constraints{}); probeErr == nil {
			c.diag.Capture("control_not_interactable_"+d.Control, c.page.Screenshot(), c.page.HTML())
			return nil, &NotInteractableError{Control: d.Control}
		}
	}
	return nil, err
}

func (c *SessionController) fillCredentials(creds config.Credentials) error {
	username, err := c.resolveInteractable(locator.Descriptor{
		Control:    "username",
		Strategies: selectorStrategies(c.controls.Username),
	})
	if err != nil {
		return err
	}
	password, err := c.resolveInteractable(locator.Descriptor{
		Control:    "password",
		Strategies: selectorStrategies(c.controls.Password),
	})
	if err != nil {
		return err
	}

	if err := username.Fill(creds.Username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}
	if err := password.Fill(creds.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	return nil
}

// submit activates the login control and absorbs the result, whether the
// portal navigates or updates in place via AJAX. The wait is bounded; we
// proceed on settle or timeout and let the marker check decide.
func (c *SessionController) submit(ctx context.Context) error {
	d := locator.Descriptor{
		Control: "submit",
		Strategies: append(
			selectorStrategies(c.controls.Submit),
			locator.ByLabel("", c.controls.SubmitLabel),
		),
	}
	el, err := c.resolveInteractable(d)
	if err != nil {
		return err
	}
	if err := el.Click(); err != nil {
		return fmt.Errorf("click submit: %w", err)
	}
	return c.page.WaitSettled(ctx, c.scrape.GetSettleTimeout())
}

// confirmOutcome checks the page text for an authenticated-state marker or
// a known failure phrase. Absence of both is ambiguous and fails closed.
func (c *SessionController) confirmOutcome() error {
	text, err := c.page.Text()
	if err != nil {
		return fmt.Errorf("read post-login page: %w", err)
	}
	upper := strings.ToUpper(text)

	for _, marker := range c.scrape.FailureMarkers {
		if strings.Contains(upper, strings.ToUpper(marker)) {
			c.diag.Capture("03_login_rejected", c.page.Screenshot(), c.page.HTML())
			return &LoginRejectedError{Marker: marker}
		}
	}
	for _, marker := range c.scrape.SuccessMarkers {
		if strings.Contains(upper, strings.ToUpper(marker)) {
			return nil
		}
	}

	c.diag.Capture("03_login_ambiguous", c.page.Screenshot(), c.page.HTML())
	return &AmbiguousLoginError{URL: c.page.URL()}
}

// revalidate navigates straight to the search view and confirms its
// expected controls are present. A positive marker alone misses portals
// that silently bounce back to the login view on the next navigation.
func (c *SessionController) revalidate(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, c.scrape.GetNavigationTimeout())
	defer cancel()
	if err := c.page.Navigate(navCtx, c.portal.SearchURL()); err != nil {
		c.diag.Capture("04_search_load_failed", c.page.Screenshot(), c.page.HTML())
		return fmt.Errorf("load search view: %w", err)
	}

	_, err := c.resolver.Resolve(locator.Descriptor{
		Control:    "search_value",
		Strategies: selectorStrategies(c.controls.SearchValue),
	}, locator.Interactable)
	if err != nil {
		return fmt.Errorf("search view revalidation failed, session likely bounced: %w", err)
	}
	return nil
}
