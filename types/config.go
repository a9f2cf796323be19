package types

type ConfigManager interface {
	Load() error
	GetConfig() *ISRConfig
}

type ISRConfig struct {
	Name    string `yaml:"name" json:"name" validate:"required"`
	Version string `yaml:"version" json:"version"`

	// BuildID stamps every cached entry; entries carrying a different id
	// than the running process are treated as misses. Empty disables the
	// check unless a build stamp is found in the environment.
	BuildID string `yaml:"build_id" json:"build_id"`

	AllowedQueryParams []string `yaml:"allowed_query_params" json:"allowed_query_params"`

	// DefaultRevalidate applies when a rendered page reports no revalidate
	// directive of its own. nil or negative means such pages are not cached.
	DefaultRevalidate *int `yaml:"default_revalidate" json:"default_revalidate"`

	// SkipCachingOnErrors defaults to true; nil means unset.
	SkipCachingOnErrors    *bool `yaml:"skip_caching_on_errors" json:"skip_caching_on_errors"`
	BackgroundRevalidation bool  `yaml:"background_revalidation" json:"background_revalidation"`
	NonBlockingRender      bool  `yaml:"non_blocking_render" json:"non_blocking_render"`

	CacheTimeoutMs  int `yaml:"cache_timeout_ms" json:"cache_timeout_ms" validate:"min=0"`
	RenderTimeoutMs int `yaml:"render_timeout_ms" json:"render_timeout_ms" validate:"min=0"`

	InvalidateSecret     string `yaml:"invalidate_secret" json:"invalidate_secret"`
	InvalidateSecretHash string `yaml:"invalidate_secret_hash" json:"invalidate_secret_hash"`

	Render      RenderOptions      `yaml:"render" json:"render"`
	Store       *StoreConfig       `yaml:"store" json:"store"`
	Compression *CompressionConfig `yaml:"compression" json:"compression"`
	Logger      *LoggerConfig      `yaml:"logger" json:"logger"`
	Metrics     *MetricsConfig     `yaml:"metrics" json:"metrics"`
	Schedule    *ScheduleConfig    `yaml:"schedule" json:"schedule"`
}

type StoreConfig struct {
	Type   string      `yaml:"type" json:"type" validate:"required"`
	Config interface{} `yaml:"config" json:"config"`
}

type CompressionConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Algorithm string `yaml:"algorithm" json:"algorithm"`
	Level     int    `yaml:"level" json:"level"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

type MetricsConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Prefix  string      `yaml:"prefix" json:"prefix"`
	Config  interface{} `yaml:"config" json:"config"`
}

// ScheduleConfig drives optional cron-based bulk revalidation: every tick
// the listed URLs are rebuilt across all variants, bypassing the in-flight
// dedup the same way an external invalidation call would.
type ScheduleConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Spec     string   `yaml:"spec" json:"spec" validate:"required_if=Enabled true"`
	Timezone string   `yaml:"timezone" json:"timezone"`
	URLs     []string `yaml:"urls" json:"urls"`
}
