// Package config loads harvest run configuration from a YAML file and
// fills in defaults tuned for SPA help centers.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// Duration parses YAML strings like "30s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full run configuration.
type Config struct {
	StartURL  string `yaml:"start_url"`
	OutputDir string `yaml:"output_dir"`

	// Mode selects the route enumerator: links, tabs, or hash.
	Mode     string `yaml:"mode"`
	RouteCap int    `yaml:"route_cap"`

	SubmenuSelectors  []string `yaml:"submenu_selectors"`
	QuestionSelectors []string `yaml:"question_selectors"`
	AnswerSelectors   []string `yaml:"answer_selectors"`
	MainSelectors     []string `yaml:"main_selectors"`
	ContainerSelectors []string `yaml:"container_selectors"`
	Stoplist          []string `yaml:"stoplist"`
	Vocabulary        []string `yaml:"vocabulary"`

	UserAgents []string `yaml:"user_agents"`

	Retry    Retry    `yaml:"retry"`
	Wait     Wait     `yaml:"wait"`
	Delay    Duration `yaml:"delay"`
	Timeout  Duration `yaml:"timeout"`
	Headless *bool         `yaml:"headless"`
	Proxy    string        `yaml:"proxy"`

	Viewport Viewport `yaml:"viewport"`

	OCREndpoint string `yaml:"ocr_endpoint"`
	Images      *bool  `yaml:"images"`

	Targets []Target `yaml:"targets"`
}

// Retry tunes the navigation state machine.
type Retry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	AttemptTimeout Duration `yaml:"attempt_timeout"`
	BaseBackoff    Duration `yaml:"base_backoff"`
	BackoffCap     Duration `yaml:"backoff_cap"`
}

// Wait tunes the stability waiter.
type Wait struct {
	SignalTimeout Duration `yaml:"signal_timeout"`
	Poll          Duration `yaml:"poll"`
	Grace         Duration `yaml:"grace"`
}

// Viewport sets the emulated window size.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Target is an explicitly configured route, used instead of discovery
// when present. DirectURL is the deep link tried after indirect
// navigation exhausts its share of the attempt budget.
type Target struct {
	Label     string `yaml:"label"`
	URL       string `yaml:"url"`
	DirectURL string `yaml:"direct_url"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	headless := true
	images := true
	return &Config{
		OutputDir: "harvest-out",
		Mode:      "links",
		RouteCap:  40,
		SubmenuSelectors: []string{
			".submenu", ".sub-menu", ".dropdown-menu", "nav ul ul",
			"[class*='submenu']", "[class*='category']",
		},
		QuestionSelectors: []string{
			"div", "span", "p", "h3", "h4", "li", "button",
		},
		AnswerSelectors: []string{
			".answer", ".faq-answer", ".accordion-body", ".accordion-content",
			"[class*='answer']", "[class*='content']", "dd", ".panel-body",
		},
		MainSelectors: []string{
			"main", "article", "[role='main']", ".faq", ".faq-content",
			".help-content", "#content",
		},
		ContainerSelectors: []string{
			".container", ".wrapper", ".page", "#app", "#root", "body > div",
		},
		Stoplist: []string{
			"home", "about", "contact", "login", "sign in", "sign up",
			"privacy", "terms", "copyright", "menu", "search", "cookie",
			"follow us", "download app",
		},
		Vocabulary: []string{
			"General", "Payments", "Refunds", "Settlement", "Collect link",
			"UPI", "Wallet", "Business", "Partner", "Account", "KYC",
			"Vouchers", "Campaign", "Dashboard", "Notifications",
		},
		UserAgents: nil, // navigator falls back to its built-in pool
		Retry: Retry{
			MaxAttempts:    3,
			AttemptTimeout: Duration(30 * time.Second),
			BaseBackoff:    Duration(5 * time.Second),
			BackoffCap:     Duration(60 * time.Second),
		},
		Wait: Wait{
			SignalTimeout: Duration(5 * time.Second),
			Poll:          Duration(250 * time.Millisecond),
			Grace:         Duration(2 * time.Second),
		},
		Delay:    Duration(500 * time.Millisecond),
		Timeout:  Duration(15 * time.Minute),
		Headless: &headless,
		Viewport: Viewport{Width: 1366, Height: 900},
		Images:   &images,
	}
}

// Load reads path and overlays it on the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the fields the run cannot proceed without.
func (c *Config) Validate() error {
	switch c.Mode {
	case "links", "tabs", "hash":
	default:
		return fmt.Errorf("unknown discovery mode %q", c.Mode)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.RouteCap < 0 {
		return fmt.Errorf("route_cap must not be negative, got %d", c.RouteCap)
	}
	for i, t := range c.Targets {
		if t.Label == "" && t.URL == "" {
			return fmt.Errorf("target %d needs a label or a url", i)
		}
	}
	return nil
}

// IsHeadless reports the headless toggle with its default applied.
func (c *Config) IsHeadless() bool {
	return c.Headless == nil || *c.Headless
}

// WantImages reports whether image harvesting is enabled.
func (c *Config) WantImages() bool {
	return c.Images == nil || *c.Images
}
