// Package config loads agenthooks settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted while resolving configuration.
const (
	EnvConfigPath = "AGENTHOOKS_CONFIG"
	EnvProjectDir = "CLAUDE_PROJECT_DIR"
)

// Config is the root configuration.
type Config struct {
	ProjectDir string      `yaml:"project_dir"`
	Store      StoreConfig `yaml:"store"`
	Tools      ToolsConfig `yaml:"tools"`
	ResultsLog string      `yaml:"results_log"` // JSONL file receiving every stop result
	Log        LogConfig   `yaml:"log"`
}

// StoreConfig defines where start contexts are kept.
type StoreConfig struct {
	Path        string        `yaml:"path"` // relative paths resolve against the project dir
	LockTimeout time.Duration `yaml:"lock_timeout"`
	TTL         time.Duration `yaml:"ttl"`
}

// ToolsConfig names the tools the extractor and correlator recognise.
type ToolsConfig struct {
	Delegate []string `yaml:"delegate"`
	Create   []string `yaml:"create"`
	Modify   []string `yaml:"modify"`
	Delete   []string `yaml:"delete"`
	Shell    []string `yaml:"shell"`
}

// LogConfig defines logging output.
type LogConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	SentryDSN string `yaml:"sentry_dsn"`
	Env       string `yaml:"env"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:        filepath.Join(".claude", "state", "subagent-contexts.json"),
			LockTimeout: 5 * time.Second,
			TTL:         24 * time.Hour,
		},
		Tools: ToolsConfig{
			Delegate: []string{"Task", "Agent", "Delegate"},
			Create:   []string{"Write"},
			Modify:   []string{"Edit", "MultiEdit", "NotebookEdit"},
			Delete:   []string{"Delete", "DeleteFile"},
			Shell:    []string{"Bash"},
		},
		Log: LogConfig{
			Level: "warn",
			Env:   "production",
		},
	}
}

// Path returns the config file for a project: $AGENTHOOKS_CONFIG when set,
// else .claude/agenthooks.yaml inside projectDir.
func Path(projectDir string) string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(projectDir, ".claude", "agenthooks.yaml")
}

// Load reads the config for projectDir, falling back to defaults when no
// file exists. Values in the file overlay the defaults.
func Load(projectDir string) (*Config, error) {
	return LoadFile(Path(projectDir))
}

// LoadFile reads the config at path.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.expandEnvVars()
	return cfg, nil
}

func (c *Config) expandEnvVars() {
	c.ProjectDir = os.ExpandEnv(c.ProjectDir)
	c.Store.Path = os.ExpandEnv(c.Store.Path)
	c.ResultsLog = os.ExpandEnv(c.ResultsLog)
	c.Log.File = os.ExpandEnv(c.Log.File)
	c.Log.SentryDSN = os.ExpandEnv(c.Log.SentryDSN)
}

// StorePath resolves the start-context document against projectDir.
func (c *Config) StorePath(projectDir string) string {
	return resolve(projectDir, c.Store.Path)
}

// ResultsLogPath resolves the results log against projectDir. Empty means disabled.
func (c *Config) ResultsLogPath(projectDir string) string {
	if c.ResultsLog == "" {
		return ""
	}
	return resolve(projectDir, c.ResultsLog)
}

// LogFilePath resolves the log file against projectDir. Empty means stderr.
func (c *Config) LogFilePath(projectDir string) string {
	return resolve(projectDir, c.Log.File)
}

func resolve(projectDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(projectDir, p)
}

// ResolveProjectDir picks the project root. Order: explicit flag,
// $CLAUDE_PROJECT_DIR, the cwd reported by the hook, the working directory.
func ResolveProjectDir(flag, hookCWD string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvProjectDir); env != "" {
		return env
	}
	if hookCWD != "" {
		return hookCWD
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
