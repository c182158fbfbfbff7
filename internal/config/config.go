package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config contains runtime configuration required by the service.
// Postgres, the broker, and the upstream services are all optional:
// the ingress must keep acknowledging batches without them.
type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	DBURL string `env:"DB_URL"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	BrokerStream  string `env:"BROKER_STREAM" envDefault:"lobby.events"`

	DialogueURL string `env:"DIALOGUE_URL"`
	SpeechURL   string `env:"SPEECH_URL"`

	// API_KEYS format: "client1:key1,client2:key2"
	APIKeysRaw string `env:"API_KEYS"`

	// APIKeys maps apiKey -> clientID, parsed from APIKeysRaw.
	APIKeys map[string]string
}

// Load reads required values from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	keys, err := parseAPIKeys(cfg.APIKeysRaw)
	if err != nil {
		return Config{}, err
	}
	cfg.APIKeys = keys

	return cfg, nil
}

// parseAPIKeys turns "client:key,client:key" into apiKey -> clientID.
func parseAPIKeys(raw string) (map[string]string, error) {
	keys := map[string]string{}

	for _, p := range strings.Split(strings.TrimSpace(raw), ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			return nil, errors.New(`API_KEYS must be "client:key,client:key"`)
		}
		client := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])
		if client == "" || key == "" {
			return nil, errors.New(`API_KEYS must be "client:key,client:key"`)
		}
		keys[key] = client
	}

	// Local dev fallback so the service runs out-of-the-box.
	if len(keys) == 0 {
		keys["lobby-key-123"] = "lobby"
	}

	return keys, nil
}
