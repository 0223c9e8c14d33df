package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	DBDriver      string // sqlite|postgres|mongo|memory
	DBDSN         string
	MongoURI      string
	MongoDatabase string
	SeedFile      string // JSON quiz definitions loaded at startup

	BlobDriver   string // fs|minio
	BlobBasePath string // for fs
	MinIO        MinIO

	RedisAddr     string // empty: in-process locks and no definitions cache
	DefsCacheTTL  time.Duration
	RabbitMQURI   string
	RabbitMQExch  string
	EventSiteID   string
	HMACSecret    string
	CORSOrigins   []string
	QuestionGrace time.Duration
	SweepInterval time.Duration

	PlacementStrategy    string // flat|difficulty
	LevelIntermediateAt  float64
	LevelAdvancedAt      float64
	BucketMinAccuracy    float64
	DefaultPassThreshold float64
}

type MinIO struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// FromEnv reads configuration from the environment, after loading .env if present.
func FromEnv() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env: %v", err)
	}
	return Config{
		HTTPAddr:      envOr("HTTP_ADDR", ":8080"),
		DBDriver:      envOr("DB_DRIVER", "sqlite"),
		DBDSN:         envOr("DB_DSN", ""),
		MongoURI:      envOr("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: envOr("MONGO_DATABASE", "mindengage_quiz"),
		SeedFile:      os.Getenv("SEED_FILE"),

		BlobDriver:   envOr("BLOB_DRIVER", "fs"),
		BlobBasePath: envOr("BLOB_BASE_PATH", "./data"),
		MinIO: MinIO{
			Endpoint:  envOr("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    envOr("MINIO_BUCKET", "quiz-answers"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		DefsCacheTTL:  envSeconds("DEFS_CACHE_TTL_SEC", 300),
		RabbitMQURI:   os.Getenv("RABBITMQ_URI"),
		RabbitMQExch:  envOr("RABBITMQ_EXCHANGE", "quiz.events"),
		EventSiteID:   envOr("EVENT_SITE_ID", "local"),
		HMACSecret:    envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		CORSOrigins:   csvOr("CORS_ORIGINS", "http://localhost:3000"),
		QuestionGrace: envSeconds("QUESTION_GRACE_SEC", 2),
		SweepInterval: envSeconds("SWEEP_INTERVAL_SEC", 30),

		PlacementStrategy:    envOr("PLACEMENT_STRATEGY", "flat"),
		LevelIntermediateAt:  envFloat("LEVEL_INTERMEDIATE_AT", 40),
		LevelAdvancedAt:      envFloat("LEVEL_ADVANCED_AT", 75),
		BucketMinAccuracy:    envFloat("BUCKET_MIN_ACCURACY", 0.7),
		DefaultPassThreshold: envFloat("DEFAULT_PASS_THRESHOLD", 60),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envFloat(k string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(k), 64)
	if err != nil {
		return def
	}
	return f
}
func envSeconds(k string, def int) time.Duration {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil || n < 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
