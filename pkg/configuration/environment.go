package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenancy/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c, err := Load([]string{".env", ".env.local"})
	if err != nil {
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"tenancy"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.Password, d.SSLMode,
	)
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type RateLimitOptions struct {
	Enabled        bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	CheckNowLimit  int64         `env:"RATE_LIMIT_CHECK_NOW_LIMIT" envDefault:"6"`
	CheckNowPeriod time.Duration `env:"RATE_LIMIT_CHECK_NOW_PERIOD" envDefault:"1m"`
	Storage        string        `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate(redisURL string) error {
	if r.CheckNowLimit < 0 {
		return fmt.Errorf("rate limit CheckNowLimit must be non-negative, got %d", r.CheckNowLimit)
	}
	if r.CheckNowPeriod <= 0 {
		return fmt.Errorf("rate limit CheckNowPeriod must be positive, got %s", r.CheckNowPeriod)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && redisURL == "" {
		return fmt.Errorf("rate limit storage 'redis' requires REDIS_URL")
	}
	return nil
}

type OpsGuardOptions struct {
	Enabled bool   `env:"OPS_GUARD_ENABLED" envDefault:"true"`
	Token   string `env:"OPS_GUARD_TOKEN" envDefault:""`
	// Comma separated, e.g. "10.0.0.0/8,127.0.0.1/32".
	CIDRs string `env:"OPS_GUARD_CIDRS" envDefault:""`
}

type TenantCacheOptions struct {
	FreshTTL        time.Duration `env:"TENANT_CACHE_FRESH_TTL" envDefault:"1h"`
	StaleTTL        time.Duration `env:"TENANT_CACHE_STALE_TTL" envDefault:"24h"`
	OpTimeout       time.Duration `env:"TENANT_CACHE_OP_TIMEOUT" envDefault:"250ms"`
	WarmOnStart     bool          `env:"TENANT_CACHE_WARM_ON_START" envDefault:"false"`
	WarmConcurrency int           `env:"TENANT_CACHE_WARM_CONCURRENCY" envDefault:"16"`
}

func (o *TenantCacheOptions) Validate() error {
	if o.FreshTTL <= 0 || o.StaleTTL <= 0 {
		return fmt.Errorf("tenant cache TTLs must be positive (fresh=%s, stale=%s)", o.FreshTTL, o.StaleTTL)
	}
	if o.StaleTTL < o.FreshTTL {
		return fmt.Errorf("TENANT_CACHE_STALE_TTL (%s) must not be shorter than TENANT_CACHE_FRESH_TTL (%s)", o.StaleTTL, o.FreshTTL)
	}
	if o.WarmConcurrency <= 0 {
		return fmt.Errorf("TENANT_CACHE_WARM_CONCURRENCY must be positive, got %d", o.WarmConcurrency)
	}
	return nil
}

type DomainVerificationOptions struct {
	JobEnabled       bool          `env:"DOMAIN_VERIFY_JOB_ENABLED" envDefault:"true"`
	Interval         time.Duration `env:"DOMAIN_VERIFY_INTERVAL" envDefault:"6h"`
	CheckDelay       time.Duration `env:"DOMAIN_VERIFY_CHECK_DELAY" envDefault:"1s"`
	MaxAttempts      int           `env:"DOMAIN_VERIFY_MAX_ATTEMPTS" envDefault:"10"`
	DNSRetries       int           `env:"DOMAIN_VERIFY_DNS_RETRIES" envDefault:"3"`
	DNSBaseDelay     time.Duration `env:"DOMAIN_VERIFY_DNS_BASE_DELAY" envDefault:"500ms"`
	DNSLookupTimeout time.Duration `env:"DOMAIN_VERIFY_DNS_LOOKUP_TIMEOUT" envDefault:"2s"`
	RecordLabel      string        `env:"DOMAIN_VERIFY_RECORD_LABEL" envDefault:"_verify-domain"`
	TokenPrefix      string        `env:"DOMAIN_VERIFY_TOKEN_PREFIX" envDefault:"vc-domain-verify="`
}

func (o *DomainVerificationOptions) Validate() error {
	if o.MaxAttempts < 1 {
		return fmt.Errorf("DOMAIN_VERIFY_MAX_ATTEMPTS must be at least 1, got %d", o.MaxAttempts)
	}
	if o.Interval <= 0 {
		return fmt.Errorf("DOMAIN_VERIFY_INTERVAL must be positive, got %s", o.Interval)
	}
	if o.DNSRetries < 1 {
		return fmt.Errorf("DOMAIN_VERIFY_DNS_RETRIES must be at least 1, got %d", o.DNSRetries)
	}
	if strings.TrimSpace(o.RecordLabel) == "" {
		return fmt.Errorf("DOMAIN_VERIFY_RECORD_LABEL must not be empty")
	}
	return nil
}

type Configuration struct {
	Database           DatabaseOptions
	Prometheus         PrometheusOptions
	RateLimit          RateLimitOptions
	OpsGuard           OpsGuardOptions
	TenantCache        TenantCacheOptions
	DomainVerification DomainVerificationOptions

	// Empty REDIS_URL leaves the tenant cache unconfigured; every lookup then misses.
	RedisURL         string `env:"REDIS_URL" envDefault:""`
	RootDomain       string `env:"ROOT_DOMAIN" envDefault:""`
	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	// Looked up on each request; a random uuidv4 is generated when missing.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	RealIPHeader    string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`

	// Empty falls back to routing.DefaultRules.
	RoutingAllowlistPath string `env:"ROUTING_ALLOWLIST_PATH" envDefault:"config/routing/allowlist.yaml"`

	logger *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

// Load reads env files (when present) and the process environment into a new Configuration.
func Load(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 && len(envFiles) > 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.RateLimit.Validate(c.RedisURL); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if err := c.TenantCache.Validate(); err != nil {
		return fmt.Errorf("tenant cache configuration error: %w", err)
	}
	if err := c.DomainVerification.Validate(); err != nil {
		return fmt.Errorf("domain verification configuration error: %w", err)
	}

	c.RootDomain = strings.Trim(strings.ToLower(strings.TrimSpace(c.RootDomain)), ".")
	c.logger = logging.ConsoleLogger(c.LogrusLogLevel(), c.GoAppEnvironment)

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}

	return nil
}
