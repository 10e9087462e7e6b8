package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/schaermu/sitesync/internal/rsync"
	"gopkg.in/yaml.v3"
)

// Default values applied to every site when left unset.
const (
	DefaultExecutable = "rsync"
	DefaultFlags      = "rlptzv"
	DefaultListenAddr = "127.0.0.1:7878"
)

// AppName names the per-user configuration and state directories.
const AppName = "sitesync"

// DefaultConfigPath returns the configuration file found in the XDG config
// directories, else the path it would have under $XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	rel := filepath.Join(AppName, "config.yaml")
	if path, err := xdg.SearchConfigFile(rel); err == nil {
		return path
	}
	return filepath.Join(xdg.ConfigHome, rel)
}

// DefaultStateDir returns the state directory under $XDG_STATE_HOME.
func DefaultStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// DefaultExclude is applied to sites that do not set an exclude list.
var DefaultExclude = []string{".git", ".vscode"}

// Config represents the complete sitesync configuration
type Config struct {
	Workspace string `yaml:"workspace"`
	StateDir  string `yaml:"state_dir"`

	AutoShowOutput        bool `yaml:"auto_show_output"`
	AutoHideOutput        bool `yaml:"auto_hide_output"`
	AutoShowOutputOnError bool `yaml:"auto_show_output_on_error"`
	Notification          bool `yaml:"notification"`
	ShowProgress          bool `yaml:"show_progress"`
	UseWSL                bool `yaml:"use_wsl"`

	OnFileSave           bool     `yaml:"on_file_save"`
	OnFileSaveIndividual bool     `yaml:"on_file_save_individual"`
	OnFileLoadIndividual bool     `yaml:"on_file_load_individual"`
	WatchGlobs           []string `yaml:"watch_globs"`

	Defaults Site    `yaml:"defaults"`
	Sites    []*Site `yaml:"sites"`

	Serve ServeConfig `yaml:"serve"`
}

// ServeConfig configures the control API of the long-running daemon
type ServeConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	SecretFile string `yaml:"secret_file"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes, normalizes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in path-like string fields
func (c *Config) expandEnv() {
	c.Workspace = os.ExpandEnv(c.Workspace)
	c.StateDir = os.ExpandEnv(c.StateDir)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.SecretFile = os.ExpandEnv(c.Serve.SecretFile)
	expandSiteEnv(&c.Defaults)
	for _, s := range c.Sites {
		if s != nil {
			expandSiteEnv(s)
		}
	}
}

func expandSiteEnv(s *Site) {
	s.LocalPath = os.ExpandEnv(s.LocalPath)
	s.RemotePath = os.ExpandEnv(s.RemotePath)
	s.Cwd = os.ExpandEnv(s.Cwd)
}

// applyDefaults fills in zero-value fields and merges the site template into
// every site.
func (c *Config) applyDefaults() error {
	if c.Workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to determine workspace: %w", err)
		}
		c.Workspace = wd
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir()
	}
	if c.Serve.ListenAddr == "" {
		c.Serve.ListenAddr = DefaultListenAddr
	}

	def := c.Defaults
	if def.Executable == "" {
		def.Executable = DefaultExecutable
	}
	if def.Flags == "" {
		def.Flags = DefaultFlags
	}
	if def.Exclude == nil {
		def.Exclude = DefaultExclude
	}
	if def.Cwd == "" {
		def.Cwd = c.Workspace
	}

	sites := make([]*Site, 0, len(c.Sites))
	for _, s := range c.Sites {
		if s == nil {
			continue
		}
		merged := s.withDefaults(def)
		if merged.LocalPath != "" && !filepath.IsAbs(merged.LocalPath) {
			merged.LocalPath = filepath.Join(c.Workspace, merged.LocalPath)
		}
		sites = append(sites, merged)
	}
	c.Sites = sites
	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if !filepath.IsAbs(c.Workspace) {
		return fmt.Errorf("workspace must be an absolute path: %s", c.Workspace)
	}
	if !filepath.IsAbs(c.StateDir) {
		return fmt.Errorf("state_dir must be an absolute path: %s", c.StateDir)
	}

	seen := make(map[string]bool, len(c.Sites))
	for i, s := range c.Sites {
		key := s.Key()
		if key != "" {
			if seen[key] {
				return fmt.Errorf("sites[%d]: duplicate site %q", i, key)
			}
			seen[key] = true
		}

		if s.IsUpOnly() && s.IsDownOnly() {
			return fmt.Errorf("sites[%d] (%s): up_only and down_only are mutually exclusive", i, DisplayName(s))
		}

		for _, opt := range s.Options {
			if !rsync.IsKnownOption(opt.Name) {
				return fmt.Errorf("sites[%d] (%s): unknown option %q", i, DisplayName(s), opt.Name)
			}
		}
	}

	return nil
}

// Site returns the site with the given key, or nil.
func (c *Config) Site(key string) *Site {
	for _, s := range c.Sites {
		if s.Key() == key {
			return s
		}
	}
	return nil
}

// StateFilePath returns the path to the persisted selection state
func (c *Config) StateFilePath() string {
	return filepath.Join(c.StateDir, "state.json")
}

// OutputLogPath returns the path of the append-only transfer output log
func (c *Config) OutputLogPath() string {
	return filepath.Join(c.StateDir, "output.log")
}
