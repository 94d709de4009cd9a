package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// MailConfig holds the IMAP connection settings for the monitored mailbox.
type MailConfig struct {
	// Server is the IMAP host name.
	Server string `mapstructure:"server" yaml:"server"`

	// Port is the IMAP port, TLS assumed (993 by default).
	Port string `mapstructure:"port" yaml:"port"`

	// Username is the mailbox login.
	Username string `mapstructure:"username" yaml:"username"`

	// Password is the mailbox password. Leave empty to resolve it from
	// the DOCINTAKE_MAIL_PASSWORD environment variable or the OS keyring.
	Password string `mapstructure:"password" yaml:"password"`

	// Mailbox is the folder to poll for unread messages.
	Mailbox string `mapstructure:"mailbox" yaml:"mailbox"`
}

// ScrapeConfig holds settings for the companion web-scraping command.
type ScrapeConfig struct {
	LoginURL string `mapstructure:"login_url" yaml:"login_url"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Output   string `mapstructure:"output" yaml:"output"`
	Headless bool   `mapstructure:"headless" yaml:"headless"`
}

// Config is the top-level application configuration.
type Config struct {
	Mail MailConfig `mapstructure:"mail" yaml:"mail"`

	// OutputRoot is the directory under which all produced artifacts live:
	// review copies, attachment folders, registered and downloaded
	// documents, the CSV journal and the processing ledger.
	OutputRoot string `mapstructure:"output_root" yaml:"output_root"`

	// FontPath points to a Unicode TTF used for PDF rendering. When the
	// file is missing the built-in Helvetica is used instead (Cyrillic
	// text will not render correctly in that case).
	FontPath string `mapstructure:"font_path" yaml:"font_path"`

	// InlineTextLimit caps inline text/HTML attachment excerpts, in runes.
	InlineTextLimit int `mapstructure:"inline_text_limit" yaml:"inline_text_limit"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogDir   string `mapstructure:"log_dir" yaml:"log_dir"`

	Scrape ScrapeConfig `mapstructure:"scrape" yaml:"scrape"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/docintake/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "docintake", "config.yaml")
}

func defaultConfig() *Config {
	return &Config{
		Mail: MailConfig{
			Port:    "993",
			Mailbox: "INBOX",
		},
		OutputRoot:      "docintake",
		FontPath:        "DejaVuSans.ttf",
		InlineTextLimit: 2000,
		LogLevel:        "info",
	}
}

// Load reads configuration from the given YAML file path using Viper.
// Environment variables prefixed DOCINTAKE_ override file values
// (e.g. DOCINTAKE_MAIL_SERVER, DOCINTAKE_MAIL_PASSWORD). A missing file
// yields the defaults rather than an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("mail.port", "993")
	v.SetDefault("mail.mailbox", "INBOX")
	v.SetDefault("output_root", "docintake")
	v.SetDefault("font_path", "DejaVuSans.ttf")
	v.SetDefault("inline_text_limit", 2000)
	v.SetDefault("log_level", "info")
	v.SetDefault("scrape.output", "scraped_records.csv")

	v.SetEnvPrefix("DOCINTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the given configuration to a YAML file at path, creating
// parent directories if needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("mail", cfg.Mail)
	v.Set("output_root", cfg.OutputRoot)
	v.Set("font_path", cfg.FontPath)
	v.Set("inline_text_limit", cfg.InlineTextLimit)
	v.Set("log_level", cfg.LogLevel)
	v.Set("log_dir", cfg.LogDir)
	v.Set("scrape", cfg.Scrape)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// ReviewDir is where freshly assembled dossiers wait for the operator.
func (c *Config) ReviewDir() string {
	return filepath.Join(c.OutputRoot, "1_review")
}

// AttachmentsRoot is the parent of the per-message attachment folders.
func (c *Config) AttachmentsRoot() string {
	return filepath.Join(c.OutputRoot, "2_attachments")
}

// RegisteredDir holds documents that received a registration number.
func (c *Config) RegisteredDir() string {
	return filepath.Join(c.OutputRoot, "3_registered")
}

// DownloadedDir holds documents the operator kept without registering.
func (c *Config) DownloadedDir() string {
	return filepath.Join(c.OutputRoot, "4_downloaded")
}

// JournalPath is the append-only CSV registration journal.
func (c *Config) JournalPath() string {
	return filepath.Join(c.OutputRoot, "registration_journal.csv")
}

// LedgerPath is the SQLite processing ledger.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.OutputRoot, "docintake.db")
}

// EnsureDirs creates the full output directory tree. Failure here aborts
// the whole run.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{
		c.OutputRoot,
		c.ReviewDir(),
		c.AttachmentsRoot(),
		c.RegisteredDir(),
		c.DownloadedDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}
