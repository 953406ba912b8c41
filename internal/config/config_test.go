package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `agent:
  log_level: "info"
devices:
  - id: "term-1"
    type: "Terminal"
    provider: "mock"
    enabled: true
`

const updatedYAML = `agent:
  log_level: "debug"
devices:
  - id: "term-1"
    type: "Terminal"
    provider: "mock"
    enabled: false
`

func TestInitFallsBackToDefaults(t *testing.T) {
	cfg, err := Init(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9400/agent", cfg.ServerURL)
	assert.Equal(t, 30*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, 3, cfg.DefaultMaxRetries)
}

func TestWatchReloadsWhileGetServesReaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseYAML), 0o644))

	cfg, err := Init(path)
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.Len(t, cfg.Devices, 1)
	require.True(t, cfg.Devices[0].Enabled)

	changed := make(chan AppConfig, 1)
	Watch(func(c AppConfig) {
		select {
		case changed <- c:
		default:
		}
	})

	// hammer Get from other goroutines while the watcher rewrites cfg
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = Get()
				}
			}
		}()
	}

	require.NoError(t, os.WriteFile(path, []byte(updatedYAML), 0o644))

	select {
	case next := <-changed:
		assert.Equal(t, "debug", next.LogLevel)
		require.Len(t, next.Devices, 1)
		assert.False(t, next.Devices[0].Enabled)
	case <-time.After(5 * time.Second):
		t.Fatal("config change never observed")
	}
	close(done)
	wg.Wait()

	assert.Equal(t, "debug", Get().LogLevel)
}
