package config

import (
	"os"
	"time"
)

type Config struct {
	Addr             string
	DatabaseDSN      string
	JWTSecret        string
	RedisAddr        string
	DispatchInterval time.Duration
}

func Load() *Config {
	return &Config{
		Addr:             getEnv("ADDR", ":8080"),
		DatabaseDSN:      getEnv("DB_DSN", ""),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		DispatchInterval: getEnvDuration("DISPATCH_INTERVAL", time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
