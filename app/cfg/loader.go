package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"forge_user" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" description:"Database password (required)" required:"true"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"content_forge" description:"Database name"`
	DBSSLMode  string `long:"db-sslmode" env:"DB_SSLMODE" default:"disable" description:"Postgres sslmode"`

	RedisAddr string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for site locks (optional, in-process locks when empty)"`

	// Generative text service
	AnthropicAPIKey   string  `long:"anthropic-api-key" env:"ANTHROPIC_API_KEY" description:"API key for the generative text service" required:"true"`
	AnthropicModel    string  `long:"anthropic-model" env:"ANTHROPIC_MODEL" default:"claude-sonnet-4-5" description:"Model used for rewriting and classification"`
	GenerativeTimeout int     `long:"generative-timeout" env:"GENERATIVE_TIMEOUT" default:"120" description:"Per-call timeout for the generative service in seconds"`
	GenerativeRPS     float64 `long:"generative-rps" env:"GENERATIVE_RPS" default:"0.5" description:"Maximum generative requests per second"`

	// Object storage
	S3Endpoint      string `long:"s3-endpoint" env:"S3_ENDPOINT" description:"S3-compatible endpoint (image hosting disabled when empty)"`
	S3Bucket        string `long:"s3-bucket" env:"S3_BUCKET" default:"article-images" description:"Bucket for article images"`
	S3AccessKey     string `long:"s3-access-key" env:"S3_ACCESS_KEY" description:"Object storage access key"`
	S3SecretKey     string `long:"s3-secret-key" env:"S3_SECRET_KEY" description:"Object storage secret key"`
	S3UseSSL        bool   `long:"s3-use-ssl" env:"S3_USE_SSL" description:"Use TLS for object storage"`
	S3PublicBaseURL string `long:"s3-public-url" env:"S3_PUBLIC_URL" description:"Public base URL for stored objects"`

	// Application configuration
	PipelineFile      string `long:"pipeline-file" env:"PIPELINE_FILE" default:"./pipeline.yml" description:"YAML file with pipeline tuning"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for trigger endpoints (optional)"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"900" description:"Scheduler interval in seconds (0 disables the scheduler)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers"`
	RewriteBatchSize  int    `long:"rewrite-batch-size" env:"REWRITE_BATCH_SIZE" default:"10" description:"Items rewritten per site per run"`
	RunOnce           bool   `long:"run-once" env:"RUN_ONCE" description:"Run fetch and rewrite for all active sites, then exit"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Content Forge/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

func Load() (*Cfg, error) {
	return parse(nil)
}

func parse(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBHost:            raw.DBHost,
		DBPort:            raw.DBPort,
		DBUser:            raw.DBUser,
		DBPassword:        raw.DBPassword,
		DBName:            raw.DBName,
		DBSSLMode:         raw.DBSSLMode,
		RedisAddr:         raw.RedisAddr,
		AnthropicAPIKey:   raw.AnthropicAPIKey,
		AnthropicModel:    raw.AnthropicModel,
		GenerativeTimeout: time.Duration(raw.GenerativeTimeout) * time.Second,
		GenerativeRPS:     raw.GenerativeRPS,
		S3Endpoint:        raw.S3Endpoint,
		S3Bucket:          raw.S3Bucket,
		S3AccessKey:       raw.S3AccessKey,
		S3SecretKey:       raw.S3SecretKey,
		S3UseSSL:          raw.S3UseSSL,
		S3PublicBaseURL:   raw.S3PublicBaseURL,
		PipelineFile:      raw.PipelineFile,
		Port:              raw.Port,
		APIAccessKey:      raw.APIAccessKey,
		SchedulerInterval: raw.SchedulerInterval,
		WorkerCount:       raw.WorkerCount,
		RewriteBatchSize:  raw.RewriteBatchSize,
		RunOnce:           raw.RunOnce,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	nonNegativeFields := map[string]int{
		"scheduler interval": c.SchedulerInterval,
		"rewrite batch size": c.RewriteBatchSize,
	}
	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.GenerativeRPS <= 0 {
		return fmt.Errorf("generative rps must be positive")
	}
	return nil
}

// DSN builds the lib/pq connection string.
func (c *Cfg) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
