package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Flashing tool invocation
	UpgradeCommand string `mapstructure:"upgrade-command"`

	// Firmware file paths
	LoaderPath string `mapstructure:"loader-path"`
	ImagePath  string `mapstructure:"image-path"`

	// Stage timeouts
	UploadTimeout     time.Duration `mapstructure:"upload-timeout"`
	WriteCheckTimeout time.Duration `mapstructure:"write-check-timeout"`

	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// S3 configuration
	S3Bucket string `mapstructure:"s3-bucket"`
	S3Region string `mapstructure:"s3-region"`

	// Working directory for fetched artifacts
	WorkDir string `mapstructure:"work-dir"`

	// Firmware size ceilings
	MaxLoaderSize int64 `mapstructure:"max-loader-size"`
	MaxImageSize  int64 `mapstructure:"max-image-size"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`

	// Logging
	Verbose bool `mapstructure:"verbose"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("upgrade-command", "sudo ./upgrade_tool")
	viper.SetDefault("loader-path", "./RTE_Files/rk356x_spl_loader_ddr1056_v1.10.111.bin")
	viper.SetDefault("image-path", "./RTE_Files/lade-image-radxa-radxa-cm3-io-rk3566-20230505103716.gptimg")
	viper.SetDefault("upload-timeout", 500*time.Second)
	viper.SetDefault("write-check-timeout", 20*time.Second)
	viper.SetDefault("sqlite-path", ".artifacts/artifacts.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm.db")
	viper.SetDefault("s3-bucket", "radxa-firmware-artifacts")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("work-dir", "/tmp/radxa-flash")
	viper.SetDefault("max-loader-size", 64*1024*1024)
	viper.SetDefault("max-image-size", 16*1024*1024*1024)
	viper.SetDefault("fsm-max-retries", 5)
	viper.SetDefault("verbose", false)

	// Environment variables (will be RADXA_LOADER_PATH, etc.)
	viper.SetEnvPrefix("RADXA")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.radxa")

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
	if strings.TrimSpace(c.UpgradeCommand) == "" {
		return fmt.Errorf("upgrade-command cannot be empty")
	}
	if c.LoaderPath == "" {
		return fmt.Errorf("loader-path cannot be empty")
	}
	if c.ImagePath == "" {
		return fmt.Errorf("image-path cannot be empty")
	}
	if c.UploadTimeout <= 0 {
		return fmt.Errorf("upload-timeout must be positive")
	}
	if c.WriteCheckTimeout <= 0 {
		return fmt.Errorf("write-check-timeout must be positive")
	}
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.S3Bucket == "" {
		return fmt.Errorf("s3-bucket cannot be empty")
	}
	if c.MaxLoaderSize <= 0 {
		return fmt.Errorf("max-loader-size must be positive")
	}
	if c.MaxImageSize <= 0 {
		return fmt.Errorf("max-image-size must be positive")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	return nil
}
