package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Driver selects the record store backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverFile     Driver = "file"
	DriverMemory   Driver = "memory"
)

// Default collection keys. They match the keys older clients wrote.
const (
	DefaultDealsKey         = "manovate_deals_v4"
	DefaultNotificationsKey = "crm_notifications"
)

var logLevels = []string{"debug", "info", "warn", "error", "fatal"}

type Config struct {
	Database      DatabaseConfig      `toml:"database"`
	Logging       LoggingConfig       `toml:"logging"`
	Pipeline      PipelineConfig      `toml:"pipeline"`
	Notifications NotificationsConfig `toml:"notifications"`
	Identity      IdentityConfig      `toml:"identity"`
	Server        ServerConfig        `toml:"server"`
	Backup        BackupConfig        `toml:"backup"`
}

type DatabaseConfig struct {
	Driver Driver `toml:"driver"`
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
	Dir    string `toml:"dir"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type PipelineConfig struct {
	SeedDemoDeals bool   `toml:"seed_demo_deals"`
	DealsKey      string `toml:"deals_key"`
}

type NotificationsConfig struct {
	SeedDemo bool   `toml:"seed_demo"`
	Key      string `toml:"key"`
}

type IdentityConfig struct {
	DisplayName string `toml:"display_name"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

// BackupConfig points snapshot backups at an S3-compatible bucket.
// Credentials come from the usual AWS environment and shared config files.
type BackupConfig struct {
	S3Bucket    string `toml:"s3_bucket"`
	S3Region    string `toml:"s3_region"`
	S3Endpoint  string `toml:"s3_endpoint"`
	S3PathStyle bool   `toml:"s3_path_style"`
	S3Prefix    string `toml:"s3_prefix"`
}

// Default returns the configuration used when no file is present.
func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".manovate/log",
			},
		},
		Pipeline: PipelineConfig{
			SeedDemoDeals: true,
			DealsKey:      DefaultDealsKey,
		},
		Notifications: NotificationsConfig{
			SeedDemo: true,
			Key:      DefaultNotificationsKey,
		},
		Identity: IdentityConfig{
			DisplayName: "You",
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Backup: BackupConfig{
			S3Prefix: "manovate/snapshots",
		},
	}
}

// Load overlays the TOML file at path onto defaults. A missing or empty file yields defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	cfg.Database.Driver = Driver(strings.ToLower(strings.TrimSpace(string(cfg.Database.Driver))))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	case DriverFile:
		if strings.TrimSpace(c.Database.Dir) == "" {
			return errors.New("database.dir is required for the file driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid database.driver: %q", c.Database.Driver)
	}

	if !slices.Contains(logLevels, c.Logging.Level) {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	dealsKey := strings.TrimSpace(c.Pipeline.DealsKey)
	notificationsKey := strings.TrimSpace(c.Notifications.Key)
	if dealsKey == "" {
		return errors.New("pipeline.deals_key is required")
	}
	if notificationsKey == "" {
		return errors.New("notifications.key is required")
	}
	if dealsKey == notificationsKey {
		return fmt.Errorf("pipeline.deals_key and notifications.key must differ: %q", dealsKey)
	}

	api := strings.Trim(strings.TrimSpace(c.Server.APIEndpoint), "/")
	mcp := strings.Trim(strings.TrimSpace(c.Server.MCPEndpoint), "/")
	if api != "" && api == mcp {
		return fmt.Errorf("server.api_endpoint and server.mcp_endpoint must differ: %q", c.Server.APIEndpoint)
	}

	if c.Backup.S3Endpoint != "" && strings.TrimSpace(c.Backup.S3Bucket) == "" {
		return errors.New("backup.s3_bucket is required when backup.s3_endpoint is set")
	}
	return nil
}

// BackupEnabled reports whether an S3 bucket is configured.
func (c Config) BackupEnabled() bool {
	return strings.TrimSpace(c.Backup.S3Bucket) != ""
}
