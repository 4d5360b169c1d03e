// Package config loads service configuration from a YAML file and
// CROSSPOST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blacktop/crosspost/internal/store"
	"gopkg.in/yaml.v3"
)

const (
	envConfigFile   = "CROSSPOST_CONFIG"
	envAddr         = "CROSSPOST_ADDR"
	envPublicURL    = "CROSSPOST_PUBLIC_URL"
	envNonceSecret  = "CROSSPOST_NONCE_SECRET"
	envDBDriver     = "CROSSPOST_DB_DRIVER"
	envDatabaseURL  = "CROSSPOST_DATABASE_URL"
	envTransport    = "CROSSPOST_BLUESKY_TRANSPORT"
	envPDSURL       = "CROSSPOST_BLUESKY_PDS_URL"
	envEndpointURL  = "CROSSPOST_BLUESKY_ENDPOINT"
	envAdminToken   = "CROSSPOST_ADMIN_TOKEN"
	defaultAddr     = ":8080"
	defaultDBPath   = "crosspost.db"
	defaultTimeout  = 30 * time.Second
	defaultUsername = "admin"
)

// Transports understood by the Bluesky section.
const (
	TransportXRPC     = "xrpc"
	TransportEndpoint = "endpoint"
)

// Capabilities granted to users.
const (
	CapManageOptions   = "manage_options"
	CapEditPosts       = "edit_posts"
	CapEditOthersPosts = "edit_others_posts"
)

// Config is the root of the configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Bluesky  BlueskyConfig  `yaml:"bluesky"`
	Users    []User         `yaml:"users"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// PublicURL is the externally reachable base URL, used for the cron URL.
	PublicURL   string `yaml:"public_url"`
	NonceSecret string `yaml:"nonce_secret"`
}

// DatabaseConfig selects the store driver. For sqlite3 the DSN is a path.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// BlueskyConfig selects and tunes the outbound transport.
type BlueskyConfig struct {
	Transport   string        `yaml:"transport"`
	PDSURL      string        `yaml:"pds_url"`
	EndpointURL string        `yaml:"endpoint_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

// User is an API principal authenticated by bearer token.
type User struct {
	Name         string   `yaml:"name"`
	Token        string   `yaml:"token"`
	Capabilities []string `yaml:"capabilities"`
}

// Load reads path (or $CROSSPOST_CONFIG when path is empty), applies
// environment overrides and defaults, and validates the result. A missing
// file is not an error when no path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	explicit := path != ""
	if path == "" {
		path = os.Getenv(envConfigFile)
		explicit = path != ""
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Server.Addr, envAddr)
	setFromEnv(&c.Server.PublicURL, envPublicURL)
	setFromEnv(&c.Server.NonceSecret, envNonceSecret)
	setFromEnv(&c.Database.Driver, envDBDriver)
	setFromEnv(&c.Database.DSN, envDatabaseURL)
	setFromEnv(&c.Bluesky.Transport, envTransport)
	setFromEnv(&c.Bluesky.PDSURL, envPDSURL)
	setFromEnv(&c.Bluesky.EndpointURL, envEndpointURL)

	if token := strings.TrimSpace(os.Getenv(envAdminToken)); token != "" {
		c.Users = append(c.Users, User{
			Name:         defaultUsername,
			Token:        token,
			Capabilities: []string{CapManageOptions, CapEditPosts, CapEditOthersPosts},
		})
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if driver, err := store.ParseDriver(c.Database.Driver); err == nil {
		c.Database.Driver = driver
	}
	if c.Database.DSN == "" && c.Database.Driver == store.DriverSQLite {
		c.Database.DSN = defaultDBPath
	}
	if c.Bluesky.Transport == "" {
		c.Bluesky.Transport = TransportXRPC
	}
	if c.Bluesky.Timeout <= 0 {
		c.Bluesky.Timeout = defaultTimeout
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := store.ParseDriver(c.Database.Driver); err != nil {
		errs = append(errs, fmt.Errorf("database.driver: %w", err))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	switch c.Bluesky.Transport {
	case TransportXRPC, TransportEndpoint:
	default:
		errs = append(errs, fmt.Errorf("bluesky.transport: unsupported %q", c.Bluesky.Transport))
	}

	seen := map[string]string{}
	for i, u := range c.Users {
		if u.Name == "" {
			errs = append(errs, fmt.Errorf("users[%d].name is required", i))
		}
		if u.Token == "" {
			errs = append(errs, fmt.Errorf("users[%d].token is required", i))
		}
		if other, ok := seen[u.Token]; ok && u.Token != "" {
			errs = append(errs, fmt.Errorf("users[%d]: token already assigned to %q", i, other))
		}
		seen[u.Token] = u.Name
		for _, capability := range u.Capabilities {
			switch capability {
			case CapManageOptions, CapEditPosts, CapEditOthersPosts:
			default:
				errs = append(errs, fmt.Errorf("users[%d]: unknown capability %q", i, capability))
			}
		}
	}

	return errors.Join(errs...)
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
