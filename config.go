package bufferpool

import (
	"fmt"
	"os"

	"github.com/djdv/go-bufferpool/pagecache"
	"github.com/pelletier/go-toml"
	"github.com/spf13/pflag"
)

const (
	DefaultNumIOBuffers       = 8
	DefaultCacheSize          = 1024
	DefaultLoadQueueDepthHint = 64
)

// Config defines externally configurable pool options.
type Config struct {
	// Buffers allocated per page size beyond the cache capacity.
	// They hold pages that are being read, created or written back.
	NumIOBuffers int `toml:"num-io-buffers"`

	// Resident pages per page size, keyed by [PageSize.String].
	// Sizes without an entry use DefaultCacheSize.
	CacheSizes map[string]int `toml:"cache-sizes"`

	DefaultCacheSize int `toml:"default-cache-size"`

	// Initial capacity of the pending load index.
	LoadQueueDepthHint int `toml:"load-queue-depth-hint"`
}

func NewDefaultConfig() *Config {
	return &Config{
		NumIOBuffers:       DefaultNumIOBuffers,
		CacheSizes:         map[string]int{},
		DefaultCacheSize:   DefaultCacheSize,
		LoadQueueDepthHint: DefaultLoadQueueDepthHint,
	}
}

func (cfg *Config) DefineFlags(flags *pflag.FlagSet) {
	default0 := NewDefaultConfig()
	flags.IntVar(&cfg.NumIOBuffers, "io-buffers", default0.NumIOBuffers, "buffers per page size reserved for in-flight reads and writes")
	flags.IntVar(&cfg.DefaultCacheSize, "cache-size", default0.DefaultCacheSize, "resident pages per page size")
	flags.StringToIntVar(&cfg.CacheSizes, "cache-sizes", default0.CacheSizes, "resident pages for specific page sizes, e.g. 8K=512,16K=128")
	flags.IntVar(&cfg.LoadQueueDepthHint, "load-queue-hint", default0.LoadQueueDepthHint, "expected number of concurrently pending page loads")
}

// LoadConfig decodes a TOML file over the default configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapError(ErrInvalidConfig, err, "reading config")
	}
	cfg := NewDefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, wrapError(ErrInvalidConfig, err, "decoding config %s", path)
	}
	return cfg, cfg.Validate()
}

// TOML encodes the configuration.
func (cfg *Config) TOML() ([]byte, error) {
	return toml.Marshal(*cfg)
}

func (cfg *Config) Validate() error {
	if cfg.NumIOBuffers < 1 {
		return newError(ErrInvalidConfig, fmt.Sprintf("num-io-buffers must be positive, got %d", cfg.NumIOBuffers))
	}
	if cfg.DefaultCacheSize < pagecache.MinimumCapacity {
		return newError(ErrInvalidConfig, fmt.Sprintf("default-cache-size must be at least %d, got %d",
			pagecache.MinimumCapacity, cfg.DefaultCacheSize))
	}
	if cfg.LoadQueueDepthHint < 0 {
		return newError(ErrInvalidConfig, "load-queue-depth-hint must not be negative")
	}
	for key, capacity := range cfg.CacheSizes {
		if _, err := ParsePageSize(key); err != nil {
			return err
		}
		if capacity < pagecache.MinimumCapacity {
			return newError(ErrInvalidConfig, fmt.Sprintf("cache size for %s must be at least %d, got %d",
				key, pagecache.MinimumCapacity, capacity))
		}
	}
	return nil
}

// CacheSize returns the number of resident pages for size.
func (cfg *Config) CacheSize(size PageSize) int {
	for key, capacity := range cfg.CacheSizes {
		if parsed, err := ParsePageSize(key); err == nil && parsed == size {
			return capacity
		}
	}
	return cfg.DefaultCacheSize
}
