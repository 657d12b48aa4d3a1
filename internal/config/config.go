package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mpataki/awinspect/internal/models"
)

const envPrefix = "AWINSPECT"

type Config struct {
	DataDir      string             `mapstructure:"data_dir"`
	WorkflowsDir string             `mapstructure:"workflows_dir"`
	PromptsDir   string             `mapstructure:"prompts_dir"`
	ClaudePath   string             `mapstructure:"claude_path"`
	Models       []models.ChatModel `mapstructure:"models"`
	LogLevel     string             `mapstructure:"log_level"`
	LogFormat    string             `mapstructure:"log_format"`
	Notify       bool               `mapstructure:"notify"`
	MaxRuns      int                `mapstructure:"max_runs"`

	DBPath          string `mapstructure:"-"`
	UserCheckDir    string `mapstructure:"-"`
	ProjectCheckDir string `mapstructure:"-"`
}

// New loads configuration from defaults, <data dir>/config.yaml and
// AWINSPECT_* environment variables, in increasing precedence.
func New() (*Config, error) {
	return Load(viper.New())
}

func Load(v *viper.Viper) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	setDefaults(v, filepath.Join(homeDir, ".awinspect"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	dataDir := v.GetString("data_dir")
	v.SetConfigFile(filepath.Join(dataDir, "config.yaml"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// config.yaml cannot move the data dir it lives in
	c.DataDir = dataDir
	c.DBPath = filepath.Join(dataDir, "awinspect.db")
	c.UserCheckDir = filepath.Join(dataDir, "checks")
	c.ProjectCheckDir = filepath.Join(".awinspect", "checks")

	return &c, nil
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("workflows_dir", filepath.Join(".github", "workflows"))
	v.SetDefault("prompts_dir", filepath.Join(dataDir, "prompts"))
	v.SetDefault("claude_path", "claude")
	v.SetDefault("models", []map[string]any{
		{"id": "sonnet", "name": "Claude Sonnet"},
		{"id": "opus", "name": "Claude Opus"},
		{"id": "haiku", "name": "Claude Haiku"},
	})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("notify", false)
	v.SetDefault("max_runs", 50)
}

func (c *Config) EnsureDataDir() error {
	for _, dir := range []string{c.DataDir, c.UserCheckDir, c.ReportsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) ReportsDir() string {
	return filepath.Join(c.DataDir, "reports")
}

func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "awinspect.log")
}

// CheckDirs lists where check scripts are loaded from, user scripts first.
func (c *Config) CheckDirs() []string {
	return []string{c.UserCheckDir, c.ProjectCheckDir}
}
