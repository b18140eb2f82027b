// Package config centralizes environment-driven configuration the way
// pkg/volc/config does for the Volcengine client, generalized here to the
// full set of variables the gateway needs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the gateway reads at
// startup.
type Config struct {
	GroqAPIKey      string
	FireworksAPIKey string
	UseFireworks    bool

	ClerkJWTKey            string
	ClerkAuthorizedParties []string

	ObjectStoreBucket string

	// ObjectStoreEndpoint, when set, points the object store client at a
	// custom S3-compatible endpoint (e.g. a local MinIO instance) with
	// static credentials instead of the default AWS credential chain.
	ObjectStoreEndpoint     string
	ObjectStoreRegion       string
	ObjectStoreAccessKey    string
	ObjectStoreSecretKey    string
	ObjectStoreUsePathStyle bool

	// TicketStoreBinding is a redis:// connection URL for the production
	// Ticket Store backing, or the literal "memory" to select the
	// in-process map implementation (used by local/dev runs and tests).
	TicketStoreBinding string

	DebugMode bool

	Port int
}

// Load reads .env (if present, missing is not an error) and then the
// process environment, mirroring cmd/server's godotenv.Load() pattern.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		GroqAPIKey:              os.Getenv("GROQ_API_KEY"),
		FireworksAPIKey:         os.Getenv("FIREWORKS_API_KEY"),
		UseFireworks:            boolEnv("USE_FIREWORKS", false),
		ClerkJWTKey:             os.Getenv("CLERK_JWT_KEY"),
		ClerkAuthorizedParties:  splitCSV(os.Getenv("CLERK_AUTHORIZED_PARTIES")),
		ObjectStoreBucket:       os.Getenv("OBJECT_STORE_BUCKET"),
		ObjectStoreEndpoint:     os.Getenv("OBJECT_STORE_ENDPOINT"),
		ObjectStoreRegion:       envOr("OBJECT_STORE_REGION", "us-east-1"),
		ObjectStoreAccessKey:    os.Getenv("OBJECT_STORE_ACCESS_KEY"),
		ObjectStoreSecretKey:    os.Getenv("OBJECT_STORE_SECRET_KEY"),
		ObjectStoreUsePathStyle: boolEnv("OBJECT_STORE_USE_PATH_STYLE", false),
		TicketStoreBinding:      envOr("TICKET_STORE_BINDING", "memory"),
		DebugMode:               boolEnv("DEBUG_MODE", false),
		Port:                    intEnv("PORT", 8080),
	}

	if cfg.ClerkJWTKey == "" {
		return nil, fmt.Errorf("config: CLERK_JWT_KEY is required")
	}
	if cfg.UseFireworks && cfg.FireworksAPIKey == "" {
		return nil, fmt.Errorf("config: FIREWORKS_API_KEY is required when USE_FIREWORKS is set")
	}
	if !cfg.UseFireworks && cfg.GroqAPIKey == "" {
		return nil, fmt.Errorf("config: GROQ_API_KEY is required when USE_FIREWORKS is unset")
	}
	if cfg.ObjectStoreBucket == "" {
		return nil, fmt.Errorf("config: OBJECT_STORE_BUCKET is required")
	}
	if cfg.TicketStoreBinding != "memory" && !strings.HasPrefix(cfg.TicketStoreBinding, "redis://") {
		return nil, fmt.Errorf("config: TICKET_STORE_BINDING must be \"memory\" or a redis:// URL, got %q", cfg.TicketStoreBinding)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
