package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DeviceDef is one statically configured physical device.
type DeviceDef struct {
	ID         string            `mapstructure:"id"`
	Type       string            `mapstructure:"type"`
	Provider   string            `mapstructure:"provider"`
	Model      string            `mapstructure:"model"`
	Serial     string            `mapstructure:"serial"`
	Connection string            `mapstructure:"connection"`
	Enabled    bool              `mapstructure:"enabled"`
	Settings   map[string]string `mapstructure:"settings"`
}

type AppConfig struct {
	ServerURL         string
	TenantID          string
	AgentID           string
	TokenSecret       string
	LogPath           string
	LogLevel          string
	LedgerDBPath      string
	HeartbeatInterval time.Duration
	DefaultTimeout    time.Duration
	DefaultMaxRetries int
	SweepInterval     time.Duration
	Retention         time.Duration
	Devices           []DeviceDef
}

// mu guards cfg: the watcher goroutine rewrites it while Get serves readers.
var (
	mu  sync.RWMutex
	cfg AppConfig
	v   *viper.Viper
)

// Init loads config from the given YAML file, falling back to defaults for
// every key so the agent can start with no file at all.
func Init(path string) (AppConfig, error) {
	v = viper.New()
	if path == "" {
		path = "config/config.yaml"
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("agent.server_url", "ws://127.0.0.1:9400/agent")
	v.SetDefault("agent.tenant_id", "")
	v.SetDefault("agent.agent_id", "")
	v.SetDefault("agent.token_secret", "")
	v.SetDefault("agent.log_path", "")
	v.SetDefault("agent.log_level", "info")
	v.SetDefault("agent.heartbeat_interval", "30s")
	v.SetDefault("ledger.db_path", filepath.Join(os.TempDir(), "local-agent", "crk.db"))
	v.SetDefault("queue.default_timeout", "30s")
	v.SetDefault("queue.default_max_retries", 3)
	v.SetDefault("queue.sweep_interval", "5m")
	v.SetDefault("queue.retention", "24h")
	_ = v.ReadInConfig()

	next := AppConfig{
		ServerURL:         v.GetString("agent.server_url"),
		TenantID:          v.GetString("agent.tenant_id"),
		AgentID:           v.GetString("agent.agent_id"),
		TokenSecret:       v.GetString("agent.token_secret"),
		LogPath:           v.GetString("agent.log_path"),
		LogLevel:          v.GetString("agent.log_level"),
		LedgerDBPath:      v.GetString("ledger.db_path"),
		HeartbeatInterval: v.GetDuration("agent.heartbeat_interval"),
		DefaultTimeout:    v.GetDuration("queue.default_timeout"),
		DefaultMaxRetries: v.GetInt("queue.default_max_retries"),
		SweepInterval:     v.GetDuration("queue.sweep_interval"),
		Retention:         v.GetDuration("queue.retention"),
	}
	var devs []DeviceDef
	if err := v.UnmarshalKey("devices", &devs); err == nil {
		next.Devices = devs
	}
	mu.Lock()
	cfg = next
	mu.Unlock()
	return next, nil
}

func Get() AppConfig {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch re-reads the file on change and hands the fresh snapshot to onChange.
// Device enabled flags are the intended hot-reloadable part; identity and
// connection settings only apply on restart.
func Watch(onChange func(AppConfig)) {
	if v == nil {
		return
	}
	v.OnConfigChange(func(_ fsnotify.Event) {
		mu.Lock()
		next := cfg
		next.LogLevel = v.GetString("agent.log_level")
		var devs []DeviceDef
		if err := v.UnmarshalKey("devices", &devs); err == nil {
			next.Devices = devs
		}
		cfg = next
		mu.Unlock()
		onChange(next)
	})
	v.WatchConfig()
}
