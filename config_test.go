package bufferpool_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/djdv/go-bufferpool"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := bufferpool.NewDefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, bufferpool.DefaultCacheSize, cfg.CacheSize(bufferpool.PageSize8K))
}

func TestConfigFlags(t *testing.T) {
	cfg := bufferpool.NewDefaultConfig()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.DefineFlags(flags)
	require.NoError(t, flags.Parse([]string{
		"--io-buffers=3",
		"--cache-size=100",
		"--cache-sizes=8K=32,16384=8",
	}))
	require.NoError(t, cfg.Validate())
	require.Equal(t, 3, cfg.NumIOBuffers)
	require.Equal(t, 100, cfg.CacheSize(bufferpool.PageSize4K))
	require.Equal(t, 32, cfg.CacheSize(bufferpool.PageSize8K))
	require.Equal(t, 8, cfg.CacheSize(bufferpool.PageSize16K))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
num-io-buffers = 4
default-cache-size = 64

[cache-sizes]
32K = 16
`), 0o644))

	cfg, err := bufferpool.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.NumIOBuffers)
	require.Equal(t, 64, cfg.CacheSize(bufferpool.PageSize4K))
	require.Equal(t, 16, cfg.CacheSize(bufferpool.PageSize32K))
	require.Equal(t, bufferpool.DefaultLoadQueueDepthHint, cfg.LoadQueueDepthHint)

	encoded, err := cfg.TOML()
	require.NoError(t, err)
	require.Contains(t, string(encoded), "num-io-buffers = 4")
}

func TestInvalidConfig(t *testing.T) {
	for _, test := range []struct {
		name   string
		mutate func(*bufferpool.Config)
	}{
		{"no io buffers", func(c *bufferpool.Config) { c.NumIOBuffers = 0 }},
		{"empty cache", func(c *bufferpool.Config) { c.DefaultCacheSize = 0 }},
		{"negative hint", func(c *bufferpool.Config) { c.LoadQueueDepthHint = -1 }},
		{"unknown size", func(c *bufferpool.Config) { c.CacheSizes = map[string]int{"3K": 10} }},
		{"empty sized cache", func(c *bufferpool.Config) { c.CacheSizes = map[string]int{"4K": 0} }},
	} {
		t.Run(test.name, func(t *testing.T) {
			cfg := bufferpool.NewDefaultConfig()
			test.mutate(cfg)
			err := cfg.Validate()
			require.True(t, bufferpool.Is(err, bufferpool.ErrInvalidConfig), err)
			_, err = bufferpool.New(*cfg)
			require.True(t, bufferpool.Is(err, bufferpool.ErrInvalidConfig), err)
		})
	}

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("num-io-buffers = ["), 0o644))
	_, err := bufferpool.LoadConfig(path)
	require.True(t, bufferpool.Is(err, bufferpool.ErrInvalidConfig), err)
}

func TestPageSize(t *testing.T) {
	for _, size := range bufferpool.PageSizes {
		parsed, err := bufferpool.ParsePageSize(size.String())
		require.NoError(t, err)
		require.Equal(t, size, parsed)
	}
	parsed, err := bufferpool.ParsePageSize("65536")
	require.NoError(t, err)
	require.Equal(t, bufferpool.PageSize64K, parsed)
	require.Equal(t, "64K", parsed.String())

	_, err = bufferpool.ParsePageSize("5000")
	require.True(t, bufferpool.Is(err, bufferpool.ErrInvalidConfig))
	_, err = bufferpool.ParsePageSize("big")
	require.Error(t, err)
	require.Equal(t, "index-inner", bufferpool.KindIndexInner.String())
}
