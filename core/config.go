package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the operator-facing configuration of the email change service.
// Zero values fall back to the defaults applied by Options.
type Config struct {
	// Method is "code" (numeric code by mail) or "link" (signed verification link).
	Method     string        `env:"EMAILCHANGE_METHOD"      envDefault:"code"`
	CodeLength int           `env:"EMAILCHANGE_CODE_LENGTH" envDefault:"6"`
	CodeTTL    time.Duration `env:"EMAILCHANGE_CODE_TTL"    envDefault:"5m"`
	LinkTTL    time.Duration `env:"EMAILCHANGE_LINK_TTL"    envDefault:"1h"`
	// LinkSecret signs link tokens (HS256). Required for the link method.
	LinkSecret  string `env:"EMAILCHANGE_LINK_SECRET"`
	LinkBaseURL string `env:"EMAILCHANGE_LINK_BASE_URL" envDefault:"http://localhost:5173/verify-email-change"`
	LinkIssuer  string `env:"EMAILCHANGE_LINK_ISSUER"   envDefault:"emailchange"`
	// UseNativeLink delegates link delivery to the identity provider when it
	// implements NativeLinkSender.
	UseNativeLink bool `env:"EMAILCHANGE_USE_NATIVE_LINK"`

	MaxAttempts     int           `env:"EMAILCHANGE_MAX_ATTEMPTS"     envDefault:"5"`
	RecordRetention time.Duration `env:"EMAILCHANGE_RECORD_RETENTION" envDefault:"24h"`
	CallTimeout     time.Duration `env:"EMAILCHANGE_CALL_TIMEOUT"     envDefault:"10s"`

	// AllowBypass enables BypassCode as an always-valid code. Rejected in production.
	AllowBypass bool   `env:"EMAILCHANGE_ALLOW_BYPASS"`
	BypassCode  string `env:"EMAILCHANGE_BYPASS_CODE"`
	// ExposeChallenge returns the raw secret in Handle.DevSecret. Ignored in production.
	ExposeChallenge bool `env:"EMAILCHANGE_EXPOSE_CHALLENGE"`

	// Environment overrides ENV/APP_ENV/ENVIRONMENT. Only "prod" and
	// "production" are treated as production.
	Environment string `env:"EMAILCHANGE_ENV"`
}

// Options is the normalized form of Config used by Service.
type Options struct {
	Method          Method
	CodeLength      int
	CodeTTL         time.Duration
	LinkTTL         time.Duration
	LinkSecret      []byte
	LinkBaseURL     string
	LinkIssuer      string
	UseNativeLink   bool
	MaxAttempts     int
	RecordRetention time.Duration
	CallTimeout     time.Duration
	AllowBypass     bool
	BypassCode      string
	ExposeChallenge bool
	Production      bool
}

// LoadConfigFromEnv reads Config from EMAILCHANGE_* variables.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Production reports whether cfg targets a production environment.
func (cfg Config) Production() bool {
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = getEnvironment()
	}
	return !isDevEnvironment(env)
}

// Options validates cfg and applies defaults.
func (cfg Config) Options() (Options, error) {
	return cfg.options(cfg.Production())
}

func (cfg Config) options(production bool) (Options, error) {
	method := Method(strings.ToLower(strings.TrimSpace(cfg.Method)))
	if method == "" {
		method = MethodCode
	}
	if method != MethodCode && method != MethodLink {
		return Options{}, fmt.Errorf("emailchange: unknown verification method %q (supported: code, link)", cfg.Method)
	}
	opts := Options{
		Method:          method,
		CodeLength:      cfg.CodeLength,
		CodeTTL:         cfg.CodeTTL,
		LinkTTL:         cfg.LinkTTL,
		LinkSecret:      []byte(cfg.LinkSecret),
		LinkBaseURL:     strings.TrimSpace(cfg.LinkBaseURL),
		LinkIssuer:      strings.TrimSpace(cfg.LinkIssuer),
		UseNativeLink:   cfg.UseNativeLink,
		MaxAttempts:     cfg.MaxAttempts,
		RecordRetention: cfg.RecordRetention,
		CallTimeout:     cfg.CallTimeout,
		AllowBypass:     cfg.AllowBypass,
		BypassCode:      strings.TrimSpace(cfg.BypassCode),
		ExposeChallenge: cfg.ExposeChallenge && !production,
		Production:      production,
	}
	opts = opts.withDefaults()

	if opts.AllowBypass {
		if production {
			return Options{}, fmt.Errorf("emailchange: bypass code must not be enabled in production")
		}
		if opts.BypassCode == "" {
			return Options{}, fmt.Errorf("emailchange: AllowBypass requires BypassCode")
		}
	}
	if method == MethodLink {
		if len(opts.LinkSecret) < 32 {
			return Options{}, fmt.Errorf("emailchange: LinkSecret of at least 32 bytes is required for the link method")
		}
		if opts.LinkBaseURL == "" {
			return Options{}, fmt.Errorf("emailchange: LinkBaseURL is required for the link method")
		}
	}
	return opts, nil
}

// withDefaults fills zero-valued fields with the documented defaults.
func (o Options) withDefaults() Options {
	if o.Method == "" {
		o.Method = MethodCode
	}
	if o.CodeLength <= 0 {
		o.CodeLength = 6
	}
	if o.CodeTTL <= 0 {
		o.CodeTTL = 5 * time.Minute
	}
	if o.LinkTTL <= 0 {
		o.LinkTTL = time.Hour
	}
	if o.LinkIssuer == "" {
		o.LinkIssuer = "emailchange"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.RecordRetention <= 0 {
		o.RecordRetention = 24 * time.Hour
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
	return o
}
