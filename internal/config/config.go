package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN  string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	OTLPEndpoint string

	// HoldTTL is used everywhere holds are created or checked: the Redis
	// lock TTL, the durable hold_expires_at, and the sweeper's notion of
	// expiry. The two stores must agree on this duration.
	HoldTTL       time.Duration
	SweepInterval time.Duration

	GatewayBaseURL     string
	GatewayClientID    string
	GatewayAPIKey      string
	GatewayChecksumKey string
	GatewayReturnURL   string
	GatewayCancelURL   string

	ListenAddr string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	holdTTL, _ := time.ParseDuration(os.Getenv("HOLD_TTL"))
	if holdTTL == 0 {
		holdTTL = 10 * time.Minute
	}
	sweepInterval, _ := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if sweepInterval == 0 {
		sweepInterval = time.Minute
	}
	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	return &Config{
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		MongoURI:           os.Getenv("MONGO_URI"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RabbitURL:          os.Getenv("RABBIT_URL"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		HoldTTL:            holdTTL,
		SweepInterval:      sweepInterval,
		GatewayBaseURL:     os.Getenv("GATEWAY_BASE_URL"),
		GatewayClientID:    os.Getenv("GATEWAY_CLIENT_ID"),
		GatewayAPIKey:      os.Getenv("GATEWAY_API_KEY"),
		GatewayChecksumKey: os.Getenv("GATEWAY_CHECKSUM_KEY"),
		GatewayReturnURL:   os.Getenv("GATEWAY_RETURN_URL"),
		GatewayCancelURL:   os.Getenv("GATEWAY_CANCEL_URL"),
		ListenAddr:         listenAddr,
	}, nil
}
