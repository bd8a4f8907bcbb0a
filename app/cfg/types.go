package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (optional, enables cross-process site locks)
	RedisAddr string

	// Generative text service
	AnthropicAPIKey   string
	AnthropicModel    string
	GenerativeTimeout time.Duration
	GenerativeRPS     float64

	// Object storage
	S3Endpoint      string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3UseSSL        bool
	S3PublicBaseURL string

	// Application configuration
	PipelineFile      string
	Port              string
	APIAccessKey      string
	SchedulerInterval int
	WorkerCount       int
	RewriteBatchSize  int
	RunOnce           bool

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
