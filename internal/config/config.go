package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/mixwizard-cli/internal/utils"
)

const dirName = ".mixwizard"

// Global configuration structure.
type Global struct {
	// Backend persistence service
	BackendURL    string `mapstructure:"backend_url" yaml:"backend_url"`
	UseLocalStore bool   `mapstructure:"use_local_store" yaml:"use_local_store"`
	LocalStoreDir string `mapstructure:"local_store_dir" yaml:"local_store_dir"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Wizard
	SessionsDir           string `mapstructure:"sessions_dir" yaml:"sessions_dir"`
	DashboardURL          string `mapstructure:"dashboard_url" yaml:"dashboard_url"`
	PreviewRows           int    `mapstructure:"preview_rows" yaml:"preview_rows"`
	BlockOnPersistFailure bool   `mapstructure:"block_on_persist_failure" yaml:"block_on_persist_failure"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// Local development server (mixwizard serve)
	ServerAddr  string `mapstructure:"server_addr" yaml:"server_addr"`
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir"`
	StoreDriver string `mapstructure:"store_driver" yaml:"store_driver"`
	StoreDSN    string `mapstructure:"store_dsn" yaml:"store_dsn"`
}

// Keys lists the settable configuration keys in display order.
var Keys = []string{
	"backend_url", "use_local_store", "local_store_dir",
	"http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms",
	"sessions_dir", "dashboard_url", "preview_rows", "block_on_persist_failure",
	"log_level", "log_format",
	"server_addr", "data_dir", "store_driver", "store_dsn",
}

// Path resolves the config file location: cfgFile when set, otherwise
// ~/.mixwizard/config.yaml.
func Path(cfgFile string) (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, dirName, "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.mixwizard/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path, err := Path(cfgFile)
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MIXWIZARD")
	v.AutomaticEnv()

	v.SetDefault("backend_url", "http://127.0.0.1:8080")
	v.SetDefault("use_local_store", false)
	v.SetDefault("local_store_dir", "")
	// HTTP/retry defaults; a single attempt means no automatic retry
	v.SetDefault("http_timeout_sec", 30)
	v.SetDefault("retry_max_attempts", 1)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("sessions_dir", "")
	v.SetDefault("dashboard_url", "http://127.0.0.1:3000/dashboard")
	v.SetDefault("preview_rows", 100)
	v.SetDefault("block_on_persist_failure", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("data_dir", "")
	v.SetDefault("store_driver", "file")
	v.SetDefault("store_dsn", "")
	return v
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := newViper()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, dirName)
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.resolveDirs(); err != nil {
		return nil, err
	}
	return &c, nil
}

// resolveDirs fills the directory defaults under ~/.mixwizard.
func (c *Global) resolveDirs() error {
	if c.SessionsDir != "" && c.LocalStoreDir != "" && c.DataDir != "" {
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home dir: %w", err)
	}
	base := filepath.Join(home, dirName)
	if c.SessionsDir == "" {
		c.SessionsDir = filepath.Join(base, "sessions")
	}
	if c.LocalStoreDir == "" {
		c.LocalStoreDir = filepath.Join(base, "states")
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(base, "data")
	}
	return nil
}

// Set assigns key from its string form, using the same decoding as Load.
func (c *Global) Set(key, value string) error {
	known := false
	for _, k := range Keys {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown config key %q", key)
	}
	v := newViper()
	cur, err := c.asMap()
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(cur); err != nil {
		return fmt.Errorf("merge config: %w", err)
	}
	v.Set(key, value)
	var out Global
	if err := v.Unmarshal(&out); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*c = out
	return nil
}

func (c *Global) asMap() (map[string]any, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	return m, nil
}
