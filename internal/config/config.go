package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// Working directories
	WorkDir    string `mapstructure:"work-dir"`
	StagingDir string `mapstructure:"staging-dir"`

	// Image inputs
	BootImagePath string `mapstructure:"boot-image"`
	DriverDir     string `mapstructure:"driver-dir"`

	// Index selection
	EditionIndex      int  `mapstructure:"index"`
	AllIndexes        bool `mapstructure:"all-indexes"`
	MaxInstallIndexes int  `mapstructure:"max-install-indexes"`

	// Update package sources
	PackageURL  string `mapstructure:"package-url"`
	PackagePath string `mapstructure:"package-path"`

	// Behavior
	Verify bool `mapstructure:"verify"`

	// External tool
	ToolPath string `mapstructure:"tool-path"`

	// S3 configuration (s3:// package URLs)
	S3Region string `mapstructure:"s3-region"`

	// Security limits
	MaxPackageSize int64 `mapstructure:"max-package-size"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("sqlite-path", ".artifacts/servicing.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm.db")
	viper.SetDefault("work-dir", ".artifacts/work")
	viper.SetDefault("staging-dir", ".artifacts/staging")
	viper.SetDefault("boot-image", "./Downloads/boot.wim")
	viper.SetDefault("driver-dir", "./drivers")
	viper.SetDefault("index", 6)
	viper.SetDefault("all-indexes", false)
	viper.SetDefault("max-install-indexes", 11)
	viper.SetDefault("verify", false)
	viper.SetDefault("tool-path", "dism")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("max-package-size", 4*1024*1024*1024)

	// Environment variables (will be WIMTOOL_STAGING_DIR, etc.)
	viper.SetEnvPrefix("WIMTOOL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.wimtool")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work-dir cannot be empty")
	}
	if c.StagingDir == "" {
		return fmt.Errorf("staging-dir cannot be empty")
	}
	if c.BootImagePath == "" {
		return fmt.Errorf("boot-image cannot be empty")
	}
	if c.DriverDir == "" {
		return fmt.Errorf("driver-dir cannot be empty")
	}
	if c.EditionIndex < 1 {
		return fmt.Errorf("index must be positive")
	}
	if c.MaxInstallIndexes < 1 {
		return fmt.Errorf("max-install-indexes must be positive")
	}
	if c.MaxPackageSize <= 0 {
		return fmt.Errorf("max-package-size must be positive")
	}
	return nil
}
