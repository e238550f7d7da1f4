// Package config loads sprocmap settings from defaults, a YAML file,
// SPROCMAP_ environment variables and command-line flags.
package config

// Default values
const (
	DefaultDBPath     = ".sprocmap.db"
	DefaultMaxDepth   = 256
	DefaultCacheSize  = 1024
	DefaultFormat     = FormatText
	DefaultStyle      = StyleTree
	DefaultDebounceMs = 500
	EnvPrefix         = "SPROCMAP_"
)

// Output formats
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Tree styles for text output
const (
	StyleTree   = "tree"   // box-drawing characters
	StyleArrows = "arrows" // tab indentation with "->"
)

// Config holds all settings
type Config struct {
	DBPath     string `koanf:"db"`
	MaxDepth   int    `koanf:"max_depth"`  // 0 = 不限制
	CacheSize  int    `koanf:"cache_size"` // 0 = 不缓存
	Format     string `koanf:"format"`
	Style      string `koanf:"style"`
	Verbose    bool   `koanf:"verbose"`
	DebounceMs int    `koanf:"debounce_ms"`
}
