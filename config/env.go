package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadSecureConfig reads key material from the environment. A .env file in
// the working directory is loaded first when present; real environment
// variables win over file entries.
func LoadSecureConfig() (*SecureConfig, error) {
	_ = godotenv.Load()

	privateKey, err := GetRequiredEnv("FLASHARB_PRIVATE_KEY")
	if err != nil {
		return nil, fmt.Errorf("private key not found: %w", err)
	}

	// The relay auth key identifies the searcher to the private relay and
	// is only needed when a relay_url is configured.
	relayKey := os.Getenv("FLASHARB_RELAY_AUTH_KEY")

	return &SecureConfig{
		PrivateKey:   privateKey,
		RelayAuthKey: relayKey,
	}, nil
}

func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}

func GetEnvWithDefault(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
