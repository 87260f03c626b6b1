package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	RecordStore   RecordStoreConfig       `mapstructure:"record_store"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Referral      ReferralConfig          `mapstructure:"referral"`
	Capacity      CapacityConfig          `mapstructure:"capacity"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Metrics       MetricsConfig           `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Record store backends.
const (
	BackendPostgres      = "postgres"
	BackendElasticsearch = "elasticsearch"
	BackendMemory        = "memory"
)

// RecordStoreConfig selects where buyers, suppliers and referrals live.
type RecordStoreConfig struct {
	Backend     string `mapstructure:"backend"`
	IndexPrefix string `mapstructure:"index_prefix"` // elasticsearch only
	Timeout     int    `mapstructure:"timeout"`      // milliseconds
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// ReferralConfig holds lifecycle settings.
type ReferralConfig struct {
	CommissionRate        float64 `mapstructure:"commission_rate"`
	DefaultMaxActive      int     `mapstructure:"default_max_active"`
	DefaultPerformance    int     `mapstructure:"default_performance"`
	AutoTriggerOnScore    bool    `mapstructure:"auto_trigger_on_score"`
	ProfileUpdatedMessage string  `mapstructure:"profile_updated_message"`
	AdminConsoleURL       string  `mapstructure:"admin_console_url"`
}

// CapacityConfig holds reconciliation sweep settings.
type CapacityConfig struct {
	ReconcileInterval  int  `mapstructure:"reconcile_interval"`   // milliseconds, 0 disables the scheduler
	JournalGracePeriod int  `mapstructure:"journal_grace_period"` // milliseconds
	JournalEnabled     bool `mapstructure:"journal_enabled"`
}

// NotificationConfig holds settings for notification dispatchers.
type NotificationConfig struct {
	Email struct {
		Enabled   bool     `mapstructure:"enabled"`
		FromEmail string   `mapstructure:"from_email"`
		AdminTo   []string `mapstructure:"admin_to"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled      bool     `mapstructure:"enabled"`
		AdminNumbers []string `mapstructure:"admin_numbers"`
	} `mapstructure:"sms"`
	Chat struct {
		Enabled    bool   `mapstructure:"enabled"`
		WebhookURL string `mapstructure:"webhook_url"`
		Timeout    int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"chat"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	QueueSize int `mapstructure:"queue_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig holds the health and metrics listener settings.
type MetricsConfig struct {
	Address string `mapstructure:"address"`
}
