package config

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"espeech"`
	Password string `env:"PASSWORD"                envDefault:"espeech"`
	Name     string `env:"NAME"                    envDefault:"espeech"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	KeyPrefix          string   `env:"KEY_PREFIX"           envDefault:"espeech"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// HistoryConfig controls the Postgres job history sink.
type HistoryConfig struct {
	// Enabled records every terminal job in Postgres.
	Enabled bool `env:"HISTORY_ENABLED" envDefault:"false"`

	// TextPreviewLength caps how many runes of the request text are persisted.
	TextPreviewLength int `env:"HISTORY_TEXT_PREVIEW_LENGTH" envDefault:"200"`
}

// Sanitize applies guardrails to history configuration values.
func (h *HistoryConfig) Sanitize() {
	if h.TextPreviewLength < 0 {
		h.TextPreviewLength = 0
	}
	if h.TextPreviewLength > 5000 {
		h.TextPreviewLength = 5000
	}
}
