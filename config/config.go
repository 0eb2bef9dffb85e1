package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Build environments understood by the credential widget
const (
	EnvSandbox    = "SANDBOX"
	EnvStaging    = "STAGING"
	EnvProduction = "PRODUCTION"
)

// Store drivers
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// ServerSection configures the HTTP listener.
type ServerSection struct {
	ListenAddr  string   `yaml:"listen_addr"`
	CORSOrigins []string `yaml:"cors_origins"`

	// DevAuth serves a local stand-in for the identity service login
	// endpoint. Never enable it against real wallets.
	DevAuth bool `yaml:"dev_auth"`
}

// StoreSection selects where the request ledger lives.
type StoreSection struct {
	Driver     string `yaml:"driver"`
	RedisURL   string `yaml:"redis_url"`
	SQLitePath string `yaml:"sqlite_path"`
}

// IdentitySection holds the identity service endpoint and the issuer and
// verifier credentials used against it.
type IdentitySection struct {
	APIBaseURL     string `yaml:"api_base_url"`
	Environment    string `yaml:"environment"`
	IssuerDID      string `yaml:"issuer_did"`
	IssuerAPIKey   string `yaml:"issuer_api_key"`
	VerifierDID    string `yaml:"verifier_did"`
	VerifierAPIKey string `yaml:"verifier_api_key"`

	// TokenTimeout bounds one login call, Go duration format.
	TokenTimeout string `yaml:"token_timeout"`
}

// WidgetSection configures the hosted credential widget.
type WidgetSection struct {
	URL          string `yaml:"url"`
	PartnerID    string `yaml:"partner_id"`
	CredentialID string `yaml:"credential_id"`
	Theme        string `yaml:"theme"`
	Locale       string `yaml:"locale"`
	RedirectURL  string `yaml:"redirect_url"`
}

// PollerSection configures the pending request pollers.
type PollerSection struct {
	Interval string `yaml:"interval"`
}

// ProgramTier maps a minimum number of experience years to a verification program
type ProgramTier struct {
	MinYears  int64  `yaml:"min_years"`
	ProgramID string `yaml:"program_id"`
}

// Config is the credex configuration file.
type Config struct {
	Version  int             `yaml:"version,omitempty"`
	LogLevel string          `yaml:"log_level"`
	Server   ServerSection   `yaml:"server"`
	Store    StoreSection    `yaml:"store"`
	Identity IdentitySection `yaml:"identity"`
	Widget   WidgetSection   `yaml:"widget"`
	Poller   PollerSection   `yaml:"poller"`
	Programs []ProgramTier   `yaml:"programs"`
}

// Default returns the configuration used when no file overrides a value
func Default() Config {
	return Config{
		Version:  1,
		LogLevel: "info",
		Server: ServerSection{
			ListenAddr: ":9000",
		},
		Store: StoreSection{
			Driver: StoreMemory,
		},
		Identity: IdentitySection{
			Environment:  EnvSandbox,
			TokenTimeout: "30s",
		},
		Widget: WidgetSection{
			Theme:  "light",
			Locale: "en",
		},
		Poller: PollerSection{
			Interval: "5s",
		},
	}
}

// Load reads a configuration file on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration is complete enough to start.
func (c Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr must be set")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return errors.New("store.redis_url must be set for the redis driver")
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path must be set for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	switch strings.ToUpper(c.Identity.Environment) {
	case EnvSandbox, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("unknown identity.environment %q", c.Identity.Environment)
	}

	if err := validateURL("identity.api_base_url", c.Identity.APIBaseURL); err != nil {
		return err
	}
	if err := validateURL("widget.url", c.Widget.URL); err != nil {
		return err
	}

	required := map[string]string{
		"identity.issuer_did":       c.Identity.IssuerDID,
		"identity.issuer_api_key":   c.Identity.IssuerAPIKey,
		"identity.verifier_did":     c.Identity.VerifierDID,
		"identity.verifier_api_key": c.Identity.VerifierAPIKey,
		"widget.partner_id":         c.Widget.PartnerID,
		"widget.credential_id":      c.Widget.CredentialID,
	}
	var missing []string
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%s must be set", strings.Join(missing, ", "))
	}

	if _, err := c.TokenTimeout(); err != nil {
		return err
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}

	seen := make(map[int64]bool, len(c.Programs))
	for _, tier := range c.Programs {
		if tier.MinYears < 0 {
			return fmt.Errorf("programs: min_years must not be negative, got %d", tier.MinYears)
		}
		if tier.ProgramID == "" {
			return fmt.Errorf("programs: program_id missing for min_years %d", tier.MinYears)
		}
		if seen[tier.MinYears] {
			return fmt.Errorf("programs: duplicate min_years %d", tier.MinYears)
		}
		seen[tier.MinYears] = true
	}

	return nil
}

// TokenTimeout returns the parsed identity.token_timeout
func (c Config) TokenTimeout() (time.Duration, error) {
	return parsePositiveDuration("identity.token_timeout", c.Identity.TokenTimeout)
}

// PollInterval returns the parsed poller.interval
func (c Config) PollInterval() (time.Duration, error) {
	return parsePositiveDuration("poller.interval", c.Poller.Interval)
}

// ProgramFor returns the program of the highest tier whose minimum is met
func (c Config) ProgramFor(years int64) (string, bool) {
	best := int64(-1)
	program := ""
	for _, tier := range c.Programs {
		if tier.MinYears <= years && tier.MinYears > best {
			best = tier.MinYears
			program = tier.ProgramID
		}
	}
	return program, best >= 0
}

func parsePositiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return d, nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s must be set", name)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s %q", name, raw)
	}
	return nil
}
