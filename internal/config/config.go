// Package config loads server settings from a YAML file and LIGHTHOUSE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. It may be absent.
const DefaultPath = "lighthouse.yaml"

// Config holds the server settings.
type Config struct {
	ListenAddr     string        `yaml:"listen_addr"`
	DatabasePath   string        `yaml:"database_path"`
	Image          string        `yaml:"image"`
	AllowedImages  []string      `yaml:"allowed_images"`
	FilesystemRoot string        `yaml:"filesystem_root"`
	Shell          string        `yaml:"shell"`
	StopTimeout    time.Duration `yaml:"stop_timeout"`
	JWTSecret      string        `yaml:"jwt_secret"`
	FrontendURL    string        `yaml:"frontend_url"`
	PreviewPort    int           `yaml:"preview_port"`
	Log            LogConfig     `yaml:"log"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in settings. JWTSecret has no default.
func Default() *Config {
	return &Config{
		ListenAddr:     ":3000",
		DatabasePath:   "lighthouse.db",
		Image:          "javierhersan/code-ai",
		FilesystemRoot: "/app",
		Shell:          "/bin/sh",
		StopTimeout:    10 * time.Second,
		PreviewPort:    3000,
		Log:            LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error when path is DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("LIGHTHOUSE_LISTEN_ADDR", &c.ListenAddr)
	str("LIGHTHOUSE_DATABASE_PATH", &c.DatabasePath)
	str("LIGHTHOUSE_IMAGE", &c.Image)
	str("LIGHTHOUSE_FILESYSTEM_ROOT", &c.FilesystemRoot)
	str("LIGHTHOUSE_SHELL", &c.Shell)
	str("LIGHTHOUSE_JWT_SECRET", &c.JWTSecret)
	str("LIGHTHOUSE_FRONTEND_URL", &c.FrontendURL)
	str("LIGHTHOUSE_LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("LIGHTHOUSE_ALLOWED_IMAGES"); ok && v != "" {
		c.AllowedImages = nil
		for _, img := range strings.Split(v, ",") {
			if img = strings.TrimSpace(img); img != "" {
				c.AllowedImages = append(c.AllowedImages, img)
			}
		}
	}
	if v, ok := lookup("LIGHTHOUSE_STOP_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LIGHTHOUSE_STOP_TIMEOUT: %w", err)
		}
		c.StopTimeout = d
	}
	if v, ok := lookup("LIGHTHOUSE_PREVIEW_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LIGHTHOUSE_PREVIEW_PORT: %w", err)
		}
		c.PreviewPort = port
	}
	if v, ok := lookup("LIGHTHOUSE_LOG_JSON"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LIGHTHOUSE_LOG_JSON: %w", err)
		}
		c.Log.JSON = b
	}
	return nil
}

// Validate reports the first setting the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.JWTSecret == "":
		return errors.New("jwt_secret is required")
	case c.Image == "":
		return errors.New("image is required")
	case !strings.HasPrefix(c.FilesystemRoot, "/"):
		return fmt.Errorf("filesystem_root %q must be an absolute path", c.FilesystemRoot)
	case len(c.ShellCommand()) == 0:
		return errors.New("shell is required")
	case c.StopTimeout < 0:
		return fmt.Errorf("stop_timeout %s must not be negative", c.StopTimeout)
	case c.PreviewPort <= 0 || c.PreviewPort > 65535:
		return fmt.Errorf("preview_port %d is out of range", c.PreviewPort)
	}
	return nil
}

// ShellCommand splits Shell into the argument vector started for terminals.
func (c *Config) ShellCommand() []string {
	return strings.Fields(c.Shell)
}
