// Package config provides configuration management for eas-build.
// It supports loading configuration from files, environment variables, and default values.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "EASBUILD"

// Config holds all configuration for the application.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `mapstructure:"server"`
	// Log contains logging configuration.
	Log LogConfig `mapstructure:"log"`
	// Workspace controls where build working directories are created.
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	// Shell configures the command runner.
	Shell ShellConfig `mapstructure:"shell"`
	// Build holds build execution defaults.
	Build BuildConfig `mapstructure:"build"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Host is the server listening address.
	Host string `mapstructure:"host"`
	// Port is the server listening port (1-65535).
	Port int `mapstructure:"port"`
	// ReadTimeout is the maximum duration for reading request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response. Builds run
	// synchronously, so this bounds a whole build submitted over HTTP.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is the logging level: debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is the log format: json, text.
	Format string `mapstructure:"format"`
	// Output is the log output destination: stdout, stderr, or file path.
	Output string `mapstructure:"output"`
}

// WorkspaceConfig holds build workspace configuration.
type WorkspaceConfig struct {
	// Root is the parent of generated base working directories.
	// Empty means the system temp directory.
	Root string `mapstructure:"root"`
	// BaseDir, when set, is used as the base working directory of every
	// build instead of a generated one. It is removed after each build.
	BaseDir string `mapstructure:"base_dir"`
}

// ShellConfig holds command runner configuration.
type ShellConfig struct {
	// Path is the shell executable.
	Path string `mapstructure:"path"`
	// Args precede the script, e.g. ["-c"].
	Args []string `mapstructure:"args"`
	// InheritEnv passes the parent process environment to commands.
	InheritEnv bool `mapstructure:"inherit_env"`
}

// BuildConfig holds build execution defaults.
type BuildConfig struct {
	// StepTimeoutMinutes applies to steps without timeout-minutes; 0 disables.
	StepTimeoutMinutes int `mapstructure:"step_timeout_minutes"`
	// ArtifactsDir is exposed to steps as EAS_BUILD_ARTIFACTS_DIR.
	ArtifactsDir string `mapstructure:"artifacts_dir"`
}

// Load loads configuration from file and environment variables.
// Priority: Command line flags > Environment variables > Config file > Defaults
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper to read environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Warning: config file %s not found, using defaults and environment variables\n", configFile)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "2h")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stderr")

	// Workspace defaults
	v.SetDefault("workspace.root", "")
	v.SetDefault("workspace.base_dir", "")

	// Shell defaults
	v.SetDefault("shell.path", "sh")
	v.SetDefault("shell.args", []string{"-c"})
	v.SetDefault("shell.inherit_env", true)

	// Build defaults
	v.SetDefault("build.step_timeout_minutes", 360) // 6 小时
	v.SetDefault("build.artifacts_dir", "")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < time.Second {
		return fmt.Errorf("server.read_timeout must be at least 1s, got %v", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < time.Second {
		return fmt.Errorf("server.write_timeout must be at least 1s, got %v", c.Server.WriteTimeout)
	}
	if c.Server.ShutdownTimeout < time.Second {
		return fmt.Errorf("server.shutdown_timeout must be at least 1s, got %v", c.Server.ShutdownTimeout)
	}

	// Validate log config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of [debug, info, warn, error], got %s", c.Log.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of [json, text], got %s", c.Log.Format)
	}

	// Validate shell config
	if c.Shell.Path == "" {
		return fmt.Errorf("shell.path is required")
	}

	// Validate build config
	if c.Build.StepTimeoutMinutes < 0 || c.Build.StepTimeoutMinutes > 1440 {
		return fmt.Errorf("build.step_timeout_minutes must be between 0 and 1440, got %d", c.Build.StepTimeoutMinutes)
	}

	return nil
}
