package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

type DiscordConfig struct {
	Token    string `yaml:"token" env:"DISCORD_TOKEN"`
	ClientID string `yaml:"client_id" env:"DISCORD_CLIENT_ID"`
	// EventsChannelID receives attendance events. Empty disables broadcasting.
	EventsChannelID string `yaml:"events_channel_id" env:"DISCORD_EVENTS_CHANNEL_ID"`
}

// Enabled reports whether the bot should be started.
func (d DiscordConfig) Enabled() bool {
	return d.Token != ""
}

type DatabaseConfig struct {
	Host     string `yaml:"host" env:"DB_HOST,required"`
	Port     int    `yaml:"port" env:"DB_PORT,required"`
	User     string `yaml:"user" env:"DB_USER,required"`
	Password string `yaml:"password" env:"DB_PASSWORD,required"`
	DBName   string `yaml:"dbname" env:"DB_NAME,required"`
	SSLMode  string `yaml:"sslmode" env:"DB_SSLMODE,required"`
}

// DSN returns the connection string understood by pgx.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.DBName,
		d.SSLMode,
	)
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver   string `yaml:"driver"`
	SeedFile string `yaml:"seed_file"`
}

type WindowConfig struct {
	EarlyMinutes int `yaml:"early_minutes"`
	LateMinutes  int `yaml:"late_minutes"`
}

func (w WindowConfig) Early() time.Duration { return time.Duration(w.EarlyMinutes) * time.Minute }
func (w WindowConfig) Late() time.Duration  { return time.Duration(w.LateMinutes) * time.Minute }

type GeofenceConfig struct {
	DefaultMaxDistanceMeters int `yaml:"default_max_distance_meters"`
}

type DriftConfig struct {
	Enabled         bool `yaml:"enabled"`
	GraceMinutes    int  `yaml:"grace_minutes"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

func (d DriftConfig) Grace() time.Duration    { return time.Duration(d.GraceMinutes) * time.Minute }
func (d DriftConfig) Interval() time.Duration { return time.Duration(d.IntervalMinutes) * time.Minute }

type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	// Timezone is the IANA zone used for sites that do not declare one.
	Timezone string         `yaml:"timezone"`
	Window   WindowConfig   `yaml:"window"`
	Geofence GeofenceConfig `yaml:"geofence"`
	Drift    DriftConfig    `yaml:"drift"`
}

func defaults() Config {
	return Config{
		HTTP:     HTTPConfig{Addr: ":8080"},
		Storage:  StorageConfig{Driver: "postgres"},
		Timezone: "UTC",
		Window:   WindowConfig{EarlyMinutes: 30, LateMinutes: 60},
		Geofence: GeofenceConfig{DefaultMaxDistanceMeters: 100},
		Drift:    DriftConfig{Enabled: true, GraceMinutes: 5, IntervalMinutes: 20},
	}
}

// Load reads the YAML file at path, substituting ${VAR} placeholders with
// environment values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Replace environment variables in the YAML content. Unset variables
	// become empty so an unconfigured token reads as disabled.
	content := placeholderPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := placeholderPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})

	cfg := defaults()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	// Convert DB_PORT from string to int if it's an environment variable
	if portStr := os.Getenv("DB_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT value: %w", err)
		}
		cfg.Database.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host and dbname are required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.Window.EarlyMinutes < 0 || c.Window.LateMinutes < 0 {
		return fmt.Errorf("window tolerances must not be negative")
	}
	if c.Drift.GraceMinutes < 0 || c.Drift.IntervalMinutes < 0 {
		return fmt.Errorf("drift durations must not be negative")
	}
	return nil
}

// Location returns the configured default zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
