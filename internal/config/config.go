package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Manual-window dedup modes. They control whether an on-demand announcement
// window consults and/or records ids in the announced-event store.
const (
	ManualDedupIgnore  = "ignore"
	ManualDedupConsult = "consult"
	ManualDedupUpdate  = "consult-and-update"
)

// Audience binds a language code to a destination chat. Events announced for a
// domain are rendered once per audience.
type Audience struct {
	Lang string `yaml:"lang"`
	Chat int64  `yaml:"chat"`
}

// SourceConfig describes where a domain's events come from.
type SourceConfig struct {
	// Type selects the registered source implementation: "google" or "ics".
	Type string `yaml:"type"`

	// Google Calendar settings. TokenFile defaults to ~/.herald/token.json
	// when a non-service-account credentials file is used.
	CalendarID      string `yaml:"calendar_id,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
	TokenFile       string `yaml:"token_file,omitempty"`

	// ICS feed settings.
	URL string `yaml:"url,omitempty"`
}

// AnnounceConfig drives the minute-granularity "starting now" announcements.
type AnnounceConfig struct {
	Every     string     `yaml:"every"`
	Headline  string     `yaml:"headline,omitempty"`
	Audiences []Audience `yaml:"audiences"`
}

// Interval parses the tick interval.
func (a *AnnounceConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(a.Every)
	if err != nil {
		return 0, fmt.Errorf("invalid announce interval %q: %w", a.Every, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("announce interval must be positive, got %q", a.Every)
	}
	return d, nil
}

// SummaryConfig drives the scheduled live-summary post.
type SummaryConfig struct {
	At         []string `yaml:"at"` // times of day, "HH:MM"
	Chat       int64    `yaml:"chat"`
	Lang       string   `yaml:"lang,omitempty"`
	MaxResults int      `yaml:"max_results"`
}

// DomainConfig is one watched calendar with its own schedules, audiences and
// persisted state.
type DomainConfig struct {
	Name        string          `yaml:"name"`
	Source      SourceConfig    `yaml:"source"`
	Announce    *AnnounceConfig `yaml:"announce,omitempty"`
	Summary     *SummaryConfig  `yaml:"summary,omitempty"`
	ManualDedup string          `yaml:"manual_dedup"`
}

// TranslationConfig selects the translation backend for non-source-language
// audiences.
type TranslationConfig struct {
	Backend      string `yaml:"backend"` // off | google | llm
	GoogleAPIKey string `yaml:"google_api_key,omitempty"`
	LLMProvider  string `yaml:"llm_provider,omitempty"` // ollama | openai
	LLMModel     string `yaml:"llm_model,omitempty"`
	LLMBaseURL   string `yaml:"llm_base_url,omitempty"`
}

// IntroConfig configures the member-introduction interview; a zero Chat
// disables the flow.
type IntroConfig struct {
	Chat int64 `yaml:"chat"`
}

// Config is the top-level application configuration.
type Config struct {
	BotToken string  `yaml:"bot_token"`
	Admins   []int64 `yaml:"admins"`

	// StateDir holds the persisted dedup and snapshot files.
	StateDir string `yaml:"state_dir"`

	// SourceLanguage is the language calendar entries are written in; audiences
	// with the same language are never translated.
	SourceLanguage string `yaml:"source_language"`

	// UTCOffsetHours is the fixed offset all timestamps are rendered in,
	// regardless of viewer location.
	UTCOffsetHours int `yaml:"utc_offset_hours"`

	Translation TranslationConfig `yaml:"translation"`
	Intro       IntroConfig       `yaml:"intro"`
	Domains     []DomainConfig    `yaml:"domains"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		StateDir:       "~/.herald",
		SourceLanguage: "en",
		UTCOffsetHours: 0,
		Translation:    TranslationConfig{Backend: "off"},
		Domains:        []DomainConfig{},
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave correctly.
func (c *Config) Normalize() {
	if c.StateDir == "" {
		c.StateDir = "~/.herald"
	}
	if c.SourceLanguage == "" {
		c.SourceLanguage = "en"
	}
	switch c.Translation.Backend {
	case "off", "google", "llm":
	default:
		c.Translation.Backend = "off"
	}
	if c.Translation.Backend == "llm" {
		if c.Translation.LLMProvider == "" {
			c.Translation.LLMProvider = "ollama"
		}
		if c.Translation.LLMModel == "" {
			c.Translation.LLMModel = "llama3.2"
		}
	}
	seen := make(map[string]bool, len(c.Domains))
	for i := range c.Domains {
		d := &c.Domains[i]
		if d.Name == "" {
			d.Name = "domain" + strconv.Itoa(i+1)
		}
		// State files are keyed by domain name; two domains must never share
		// one.
		if seen[d.Name] {
			base := d.Name
			for n := 2; seen[d.Name]; n++ {
				d.Name = base + "-" + strconv.Itoa(n)
			}
		}
		seen[d.Name] = true
		switch d.ManualDedup {
		case ManualDedupIgnore, ManualDedupConsult, ManualDedupUpdate:
		default:
			d.ManualDedup = ManualDedupIgnore
		}
		if d.Announce != nil {
			if d.Announce.Every == "" {
				d.Announce.Every = "60s"
			}
			if d.Announce.Headline == "" {
				d.Announce.Headline = "EVENT STARTING NOW"
			}
		}
		if d.Summary != nil && d.Summary.MaxResults <= 0 {
			d.Summary.MaxResults = 5
		}
	}
}

// Location returns the fixed display zone.
func (c *Config) Location() *time.Location {
	if c.UTCOffsetHours == 0 {
		return time.UTC
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.UTCOffsetHours), c.UTCOffsetHours*3600)
}

// MaxLookahead returns the widest window any trigger of any domain can query,
// used to bound dedup-store pruning. Manual triggers go up to 3 days.
func (c *Config) MaxLookahead() time.Duration {
	max := 72 * time.Hour
	for _, d := range c.Domains {
		if d.Announce == nil {
			continue
		}
		if iv, err := d.Announce.Interval(); err == nil && iv > max {
			max = iv
		}
	}
	return max
}

// Load reads the YAML config at path, creating a default file on first run,
// then applies environment overrides. Environment variables win over file
// values, matching the .env conventions: HERALD_BOT_TOKEN, HERALD_STATE_DIR,
// HERALD_TRANSLATE_KEY.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		return nil, errors.New("config path is empty")
	}
	path = ExpandPath(path)

	var cfg *Config
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	} else {
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if v := os.Getenv("HERALD_BOT_TOKEN"); v != "" {
		cfg.BotToken = v
	}
	if v := os.Getenv("HERALD_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("HERALD_TRANSLATE_KEY"); v != "" {
		cfg.Translation.GoogleAPIKey = v
	}

	cfg.Normalize()
	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	path = ExpandPath(path)

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".herald-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// ExpandPath expands a leading ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
