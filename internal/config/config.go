package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for corehub.
type Config struct {
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Paths   PathsConfig   `mapstructure:"paths" yaml:"paths"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Upgrade UpgradeConfig `mapstructure:"upgrade" yaml:"upgrade"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	UI      UIConfig      `mapstructure:"ui" yaml:"ui"`
}

type StorageConfig struct {
	// Database is the path of the SQLite database file
	Database string `mapstructure:"database" yaml:"database"`
}

type PathsConfig struct {
	// DownloadsDir receives release files before they are verified
	DownloadsDir string `mapstructure:"downloads_dir" yaml:"downloads_dir"`

	// CoresDir is the root under which cores are installed as <unique_name>/<version>
	CoresDir string `mapstructure:"cores_dir" yaml:"cores_dir"`

	// InstallPath is the binary replaced by a self-upgrade
	InstallPath string `mapstructure:"install_path" yaml:"install_path"`
}

type NetworkConfig struct {
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
	UserAgent   string        `mapstructure:"user_agent" yaml:"user_agent"`
}

type UpgradeConfig struct {
	// PublicKey is the base64 ed25519 key release signatures are checked against
	PublicKey string `mapstructure:"public_key" yaml:"public_key"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

type UIConfig struct {
	Interactive bool   `mapstructure:"interactive" yaml:"interactive"`
	Lang        string `mapstructure:"lang" yaml:"lang"`
}

// DefaultPath is where `config init` writes the configuration file.
func DefaultPath() string {
	return filepath.Join(HomeDir(), "corehub.yaml")
}

// HomeDir returns ~/.corehub, or ./.corehub when the home directory is unknown.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".corehub"
	}
	return filepath.Join(home, ".corehub")
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	home := HomeDir()
	return &Config{
		Storage: StorageConfig{
			Database: filepath.Join(home, "corehub.sqlite"),
		},
		Paths: PathsConfig{
			DownloadsDir: filepath.Join(home, "downloads"),
			CoresDir:     filepath.Join(home, "cores"),
			InstallPath:  filepath.Join(home, "bin", "corehub"),
		},
		Network: NetworkConfig{
			Timeout:     30 * time.Second,
			RateLimit:   10,
			Concurrency: 8,
			MaxRetries:  3,
			UserAgent:   "corehub/1.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		UI: UIConfig{
			Interactive: true,
		},
	}
}

// Load loads configuration from file and environment.
// An empty configPath searches for corehub.yaml in ., ~/.corehub and
// /etc/corehub. Environment variables use the COREHUB_ prefix,
// e.g. COREHUB_NETWORK_TIMEOUT=10s.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("corehub")
		v.AddConfigPath(".")
		v.AddConfigPath(HomeDir())
		v.AddConfigPath("/etc/corehub")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("COREHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("storage.database", d.Storage.Database)

	v.SetDefault("paths.downloads_dir", d.Paths.DownloadsDir)
	v.SetDefault("paths.cores_dir", d.Paths.CoresDir)
	v.SetDefault("paths.install_path", d.Paths.InstallPath)

	v.SetDefault("network.timeout", d.Network.Timeout)
	v.SetDefault("network.rate_limit", d.Network.RateLimit)
	v.SetDefault("network.concurrency", d.Network.Concurrency)
	v.SetDefault("network.max_retries", d.Network.MaxRetries)
	v.SetDefault("network.user_agent", d.Network.UserAgent)

	v.SetDefault("upgrade.public_key", d.Upgrade.PublicKey)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)

	v.SetDefault("ui.interactive", d.UI.Interactive)
	v.SetDefault("ui.lang", d.UI.Lang)
}

func validate(cfg *Config) error {
	if cfg.Storage.Database == "" {
		return fmt.Errorf("storage.database must be set")
	}
	if cfg.Network.Concurrency < 1 {
		return fmt.Errorf("network.concurrency must be at least 1, got %d", cfg.Network.Concurrency)
	}
	if cfg.Network.MaxRetries < 0 {
		return fmt.Errorf("network.max_retries must not be negative")
	}
	if cfg.Network.RateLimit < 0 {
		return fmt.Errorf("network.rate_limit must not be negative")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", cfg.Logging.Level)
	}
	return nil
}

// EnsureDirectories creates the directories the configuration points at.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Database),
		c.Paths.DownloadsDir,
		c.Paths.CoresDir,
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

const templateHeader = `# corehub configuration file
#
# Every key can be overridden with an environment variable, for example
# COREHUB_NETWORK_TIMEOUT=10s or COREHUB_LOGGING_LEVEL=debug.

`

// SaveTemplate writes cfg as a commented YAML configuration file.
func SaveTemplate(path string, cfg *Config) error {
	if cfg == nil {
		cfg = Default()
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, append([]byte(templateHeader), data...), 0644)
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
