package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr            string
	UpstreamAPIURL  string
	UpstreamTimeout time.Duration
	PublicBaseURL   string
	SessionTTL      time.Duration
	CORSOrigin      string
	MeiliURL        string
	MeiliMasterKey  string
	// Session storage: Redis preferred, Postgres fallback
	RedisURL    string
	DatabaseURL string
	// Media object storage
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MediaBaseURL   string
}

func Load() Config {
	return Config{
		Addr:            getenv("WEB_ADDR", ":8686"),
		UpstreamAPIURL:  getenv("TERROIR_API_URL", "http://localhost:9000/api"),
		UpstreamTimeout: time.Duration(getenvInt("TERROIR_API_TIMEOUT_SECONDS", 15)) * time.Second,
		PublicBaseURL:   getenv("TERROIR_PUBLIC_URL", "http://localhost:8686"),
		SessionTTL:      time.Duration(getenvInt("TERROIR_SESSION_TTL_SECONDS", 2592000)) * time.Second,
		CORSOrigin:      getenv("TERROIR_CORS_ORIGIN", "*"),
		MeiliURL:        getenv("MEILI_URL", "http://localhost:7700"),
		MeiliMasterKey:  getenv("MEILI_MASTER_KEY", "terroir-meili-key"),
		// Redis holds browser sessions; DATABASE_URL is only used when Redis is absent
		RedisURL:    getenv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		// MinIO - empty endpoint disables media uploads
		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "terroir-media"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
		MediaBaseURL:   getenv("TERROIR_MEDIA_URL", "http://localhost:9100"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
