package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"distributor"`
	Password string `env:"PASSWORD"                envDefault:"distributor"`
	Name     string `env:"NAME"                    envDefault:"distributor"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheConfig controls the Redis-backed lookup cache.
type CacheConfig struct {
	// Enabled turns the cache off entirely when false; lookups then always hit the API.
	Enabled bool `env:"ENABLED" envDefault:"true"`
	// CatalogTTL applies to the survey and message catalogs.
	CatalogTTL time.Duration `env:"CATALOG_TTL" envDefault:"5m"`
	// ReportTTL applies to distribution links, stats and history.
	ReportTTL time.Duration `env:"REPORT_TTL" envDefault:"5m"`
	// KeyPrefix namespaces cache keys when several deployments share a Redis.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"distributor:"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if c.CatalogTTL < time.Second {
		c.CatalogTTL = time.Second
	}
	if c.ReportTTL < time.Second {
		c.ReportTTL = time.Second
	}
}
