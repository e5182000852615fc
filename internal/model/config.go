package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Archive policies select which records of a batch are archived.
const (
	PolicyAll   = "all"
	PolicyFirst = "first"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr         string `mapstructure:"addr" yaml:"addr"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// StoreConfig selects the cursor store backend.
type StoreConfig struct {
	// DSN is one of sqlite://path, memory://, postgres://..., file://dir.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// SyncConfig tunes the sync engine and the background re-poller.
type SyncConfig struct {
	// Lookback is subtracted from the first observed position when seeding
	// or re-baselining the cursor.
	Lookback uint64 `mapstructure:"lookback" yaml:"lookback"`

	// Policy is PolicyAll or PolicyFirst.
	Policy string `mapstructure:"policy" yaml:"policy"`

	// Timeout bounds a single engine invocation.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// PollIntervalSec enables the re-poller when greater than zero.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// SourceConfig describes the mailbox the change source reads.
type SourceConfig struct {
	// Type is "gmail" or "imap".
	Type string `mapstructure:"type" yaml:"type"`

	// Mailbox is the account address; it also names the cursor slot.
	Mailbox string `mapstructure:"mailbox" yaml:"mailbox"`

	// BaseURL overrides the Gmail API root.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Label restricts Gmail history to one label ID.
	Label string `mapstructure:"label" yaml:"label"`

	// IMAP settings.
	Host   string `mapstructure:"host" yaml:"host"`
	Port   string `mapstructure:"port" yaml:"port"`
	TLS    bool   `mapstructure:"tls" yaml:"tls"`
	Folder string `mapstructure:"folder" yaml:"folder"`

	// MarkRead acknowledges archived messages at the provider.
	MarkRead bool `mapstructure:"mark_read" yaml:"mark_read"`
}

// ArchiveConfig selects the document store.
type ArchiveConfig struct {
	// Type is "folder" or "drive".
	Type string `mapstructure:"type" yaml:"type"`

	// Dir is the target directory for the folder store.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// BaseURL overrides the Drive upload root.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// FolderID is the parent folder for Drive uploads.
	FolderID string `mapstructure:"folder_id" yaml:"folder_id"`

	// Dedupe consults the archive ledger before archiving.
	Dedupe bool `mapstructure:"dedupe" yaml:"dedupe"`
}

// CredentialConfig describes how bearer tokens are obtained.
type CredentialConfig struct {
	// Type is "static" (token in keyring) or "oauth" (refresh token flow).
	Type string `mapstructure:"type" yaml:"type"`

	// Key is the keyring entry holding the token or refresh token.
	Key string `mapstructure:"key" yaml:"key"`

	// ClientID and TokenURL configure the OAuth refresh flow. The client
	// secret lives in the keyring under Key + "-client-secret".
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	TokenURL string `mapstructure:"token_url" yaml:"token_url"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Sync       SyncConfig       `mapstructure:"sync" yaml:"sync"`
	Source     SourceConfig     `mapstructure:"source" yaml:"source"`
	Archive    ArchiveConfig    `mapstructure:"archive" yaml:"archive"`
	Credential CredentialConfig `mapstructure:"credential" yaml:"credential"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailvault/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailvault", "config.yaml")
}

var configDefaults = map[string]any{
	"server.addr":            ":8080",
	"server.max_body_bytes":  int64(1 << 20),
	"store.dsn":              "sqlite://mailvault.db",
	"sync.lookback":          uint64(0),
	"sync.policy":            PolicyAll,
	"sync.timeout":           60 * time.Second,
	"sync.poll_interval_sec": 0,
	"source.type":            string(SourceTypeGmail),
	"source.mailbox":         "me",
	"source.base_url":        "https://gmail.googleapis.com",
	"source.label":           "",
	"source.host":            "",
	"source.port":            "993",
	"source.tls":             true,
	"source.folder":          "INBOX",
	"source.mark_read":       false,
	"archive.type":           "folder",
	"archive.dir":            "vault",
	"archive.base_url":       "https://www.googleapis.com",
	"archive.folder_id":      "",
	"archive.dedupe":         true,
	"credential.type":        "static",
	"credential.key":         "gmail-token",
	"credential.client_id":   "",
	"credential.token_url":   "https://oauth2.googleapis.com/token",
	"log.level":              "info",
}

// newViper builds a Viper instance with defaults and MAILVAULT_* env
// overrides applied.
func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values and so
	// AutomaticEnv can see every key during Unmarshal.
	for key, value := range configDefaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("MAILVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, defaults plus environment overrides are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Sync.Policy {
	case PolicyAll, PolicyFirst:
	default:
		return fmt.Errorf("unknown sync.policy %q", c.Sync.Policy)
	}
	switch SourceType(c.Source.Type) {
	case SourceTypeGmail:
	case SourceTypeIMAP:
		if c.Source.Host == "" {
			return errors.New("source.host is required for imap")
		}
	default:
		return fmt.Errorf("unknown source.type %q", c.Source.Type)
	}
	switch c.Archive.Type {
	case "folder", "drive":
	default:
		return fmt.Errorf("unknown archive.type %q", c.Archive.Type)
	}
	if c.Source.Mailbox == "" {
		return errors.New("source.mailbox is required")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("store", cfg.Store)
	v.Set("sync", cfg.Sync)
	v.Set("source", cfg.Source)
	v.Set("archive", cfg.Archive)
	v.Set("credential", cfg.Credential)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
