// Package config holds all tunable settings for the permitwatch pipeline.
// The portal's markup is unstable, so everything empirical lives here:
// candidate selectors, header tokens, score thresholds, timeouts.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	// EnvUser and EnvPass name the environment variables supplying portal
	// credentials. Credentials never live in the config file.
	EnvUser = "PERMITWATCH_USER"
	EnvPass = "PERMITWATCH_PASS"
)

// Config captures all settings for a permitwatch run.
type Config struct {
	Portal      PortalConfig      `yaml:"portal"`
	Browser     BrowserConfig     `yaml:"browser"`
	Scrape      ScrapeConfig      `yaml:"scrape"`
	Controls    ControlsConfig    `yaml:"controls"`
	Store       StoreConfig       `yaml:"store"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Log         LogConfig         `yaml:"log"`
}

// PortalConfig identifies the target portal and the provenance stamped on
// every record.
type PortalConfig struct {
	BaseURL      string `yaml:"base_url"`
	LoginPath    string `yaml:"login_path"`
	SearchPath   string `yaml:"search_path"`
	Source       string `yaml:"source"`
	Jurisdiction string `yaml:"jurisdiction"`
	// Timezone is used to compute the default target date (yesterday).
	Timezone string `yaml:"timezone"`
	// DateFormat is the portal's native date layout in Go reference form.
	DateFormat string `yaml:"date_format"`
}

// LoginURL returns the full login entry point URL.
func (p PortalConfig) LoginURL() string { return p.BaseURL + p.LoginPath }

// SearchURL returns the full permit search view URL.
func (p PortalConfig) SearchURL() string { return p.BaseURL + p.SearchPath }

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Optional.
	DebuggerURL string `yaml:"debugger_url"`
	// Launch command to start Chrome when no debugger URL is given
	// (e.g., ["chromium", "--no-sandbox"]).
	Launch []string `yaml:"launch"`
	// Headless controls whether Chrome runs headless (default: true).
	Headless *bool `yaml:"headless"`
	// Stealth applies an ordinary-browser profile to new pages (default: true).
	Stealth *bool `yaml:"stealth"`
	// Viewport for new pages.
	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`
}

// IsHeadless returns whether Chrome should run in headless mode.
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// UseStealth returns whether new pages get the stealth profile.
func (b BrowserConfig) UseStealth() bool {
	if b.Stealth == nil {
		return true
	}
	return *b.Stealth
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1920
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 1080
	}
	return b.ViewportHeight
}

// ScrapeConfig holds the extraction tunables. The header token set and the
// acceptance threshold are portal-specific constants inferred empirically;
// they are configuration precisely because they cannot be verified without
// a live fixture.
type ScrapeConfig struct {
	// ExpectedTokens score table candidates against the results grid shape.
	ExpectedTokens []string `yaml:"expected_tokens"`
	// MinScore is the minimum matched-token count for a candidate to be
	// accepted as the results grid.
	MinScore int `yaml:"min_score"`
	// MaxPages caps pagination as a safety valve against infinite loops.
	MaxPages int `yaml:"max_pages"`
	// RunBudget bounds the whole pipeline wall-clock (e.g., "5m").
	RunBudget string `yaml:"run_budget"`
	// NavigationTimeout bounds each navigation (e.g., "30s").
	NavigationTimeout string `yaml:"navigation_timeout"`
	// SettleTimeout bounds the wait for async UI updates after an action.
	SettleTimeout string `yaml:"settle_timeout"`
	// SuccessMarkers confirm an authenticated page (case-insensitive).
	SuccessMarkers []string `yaml:"success_markers"`
	// FailureMarkers identify a rejected login (case-insensitive).
	FailureMarkers []string `yaml:"failure_markers"`
}

// GetMinScore returns the table acceptance threshold with its empirical
// default.
func (s ScrapeConfig) GetMinScore() int {
	if s.MinScore <= 0 {
		return 2
	}
	return s.MinScore
}

// GetMaxPages returns the pagination safety cap.
func (s ScrapeConfig) GetMaxPages() int {
	if s.MaxPages <= 0 {
		return 25
	}
	return s.MaxPages
}

// GetRunBudget returns the parsed run budget with a sane default.
func (s ScrapeConfig) GetRunBudget() time.Duration {
	return parseDuration(s.RunBudget, 5*time.Minute)
}

// GetNavigationTimeout returns the parsed navigation timeout.
func (s ScrapeConfig) GetNavigationTimeout() time.Duration {
	return parseDuration(s.NavigationTimeout, 30*time.Second)
}

// GetSettleTimeout returns the parsed settle timeout.
func (s ScrapeConfig) GetSettleTimeout() time.Duration {
	return parseDuration(s.SettleTimeout, 10*time.Second)
}

// ControlsConfig lists ordered candidate CSS selectors for every logical UI
// control, most stable first. The scrape layer layers label- and
// option-text fallback strategies on top of these.
type ControlsConfig struct {
	LoginMode          []string `yaml:"login_mode"`
	LoginModeOption    string   `yaml:"login_mode_option"`
	Username           []string `yaml:"username"`
	Password           []string `yaml:"password"`
	Submit             []string `yaml:"submit"`
	SubmitLabel        string   `yaml:"submit_label"`
	SearchColumn       []string `yaml:"search_column"`
	SearchColumnOption string   `yaml:"search_column_option"`
	SearchValue        []string `yaml:"search_value"`
	SearchButton       []string `yaml:"search_button"`
	SearchButtonLabel  string   `yaml:"search_button_label"`
	NextPage           []string `yaml:"next_page"`
	NextPageLabel      string   `yaml:"next_page_label"`
	NextPageGlyph      string   `yaml:"next_page_glyph"`
}

// StoreConfig configures the record sinks.
type StoreConfig struct {
	// Path of the SQLite database holding deduplicated records.
	Path string `yaml:"path"`
	// ExportDir receives results.json / results.csv per run. Empty disables
	// file export.
	ExportDir string `yaml:"export_dir"`
}

// DiagnosticsConfig configures the failure-capture sink.
type DiagnosticsConfig struct {
	Dir         string `yaml:"dir"`
	MaxCaptures int    `yaml:"max_captures"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Credentials carry the portal login pair, supplied via the environment.
type Credentials struct {
	Username string
	Password string
}

// MissingCredentialError is the fatal configuration error for an absent
// credential variable. No retry makes sense.
type MissingCredentialError struct {
	Var string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("missing credential: environment variable %s is not set", e.Var)
}

// LoadCredentials reads the portal credentials from the environment,
// failing fast when either is absent.
func LoadCredentials() (Credentials, error) {
	user := os.Getenv(EnvUser)
	if user == "" {
		return Credentials{}, &MissingCredentialError{Var: EnvUser}
	}
	pass := os.Getenv(EnvPass)
	if pass == "" {
		return Credentials{}, &MissingCredentialError{Var: EnvPass}
	}
	return Credentials{Username: user, Password: pass}, nil
}

// DefaultConfig provides the empirically-derived defaults for the target
// portal. Every selector here is a guess that has survived contact with the
// portal so far; all of them are overridable.
func DefaultConfig() Config {
	return Config{
		Portal: PortalConfig{
			BaseURL:      "https://grvlc-trk.aspgov.com",
			LoginPath:    "/eTRAKiT/",
			SearchPath:   "/eTRAKiT/Search/permit.aspx",
			Source:       "etrakit",
			Jurisdiction: "granville-county-nc",
			Timezone:     "America/New_York",
			DateFormat:   "01/02/2006",
		},
		Browser: BrowserConfig{
			Launch:         []string{"chromium"},
			ViewportWidth:  1920,
			ViewportHeight: 1080,
		},
		Scrape: ScrapeConfig{
			ExpectedTokens:    []string{"PERMIT", "ISSUED", "TYPE", "STATUS", "APN", "ADDR"},
			MinScore:          2,
			MaxPages:          25,
			RunBudget:         "5m",
			NavigationTimeout: "30s",
			SettleTimeout:     "10s",
			SuccessMarkers:    []string{"LOG OUT", "LOGGED IN AS", "MY DASHBOARD"},
			FailureMarkers:    []string{"INVALID LOGIN", "LOGIN FAILED", "PASSWORD IS INCORRECT"},
		},
		Controls: ControlsConfig{
			LoginMode:          []string{"#ucLogin_ddlSelLogin", "select[id*='SelLogin']"},
			LoginModeOption:    "Public",
			Username:           []string{"#ucLogin_txtLoginId", "input[id*='LoginId']", "input[name*='LoginId']"},
			Password:           []string{"#ucLogin_txtPassword", "input[type='password']"},
			Submit:             []string{"#ucLogin_btnLogin", "input[id*='btnLogin']"},
			SubmitLabel:        "Login",
			SearchColumn:       []string{"select[name='ctl00$MainContent$ddlSearchColumn']", "select[id*='SearchColumn']"},
			SearchColumnOption: "ISSUED",
			SearchValue:        []string{"input[name='ctl00$MainContent$txtSearchValue']", "input[id*='SearchValue']"},
			SearchButton:       []string{"input[value='Search']", "input[id*='btnSearch']"},
			SearchButtonLabel:  "Search",
			NextPage:           []string{"input[id*='btnPageNext']", "a[id*='NextPage']", ".rgPageNext"},
			NextPageLabel:      "Next",
			NextPageGlyph:      "›",
		},
		Store: StoreConfig{
			Path:      "data/permits.db",
			ExportDir: "data",
		},
		Diagnostics: DiagnosticsConfig{
			Dir:         "data/diagnostics",
			MaxCaptures: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads YAML config from disk and overlays defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, cfg.Validate()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate ensures required fields exist so a run fails deterministically
// at startup, not mid-pipeline.
func (c *Config) Validate() error {
	if c.Portal.BaseURL == "" {
		return errors.New("portal.base_url is required")
	}
	if c.Portal.SearchPath == "" {
		return errors.New("portal.search_path is required")
	}
	if c.Browser.DebuggerURL == "" && len(c.Browser.Launch) == 0 {
		return errors.New("browser.debugger_url or browser.launch must be provided")
	}
	if len(c.Scrape.ExpectedTokens) == 0 {
		return errors.New("scrape.expected_tokens must not be empty")
	}
	return nil
}

// NewLogger builds the zap logger described by LogConfig.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	zapCfg.Level.SetLevel(parsed)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
