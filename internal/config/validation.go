package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Validate checks all configuration values and fails fast with sentinel
// errors so callers can use errors.Is().
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGoogleAI, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q (supported: googleai, ollama)", ErrInvalidProvider, c.Provider)
	}

	if c.Provider == ProviderGoogleAI && os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is required for provider googleai", ErrMissingAPIKey)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}

	if c.RoundCap < 1 || c.RoundCap > 10 {
		return fmt.Errorf("%w: %d (must be 1-10)", ErrInvalidRoundCap, c.RoundCap)
	}

	if c.ScoreThreshold < 0 || c.ScoreThreshold > 100 {
		return fmt.Errorf("%w: %d (must be 0-100)", ErrInvalidScoreThreshold, c.ScoreThreshold)
	}

	if c.SessionTTL < time.Minute || c.SessionTTL > 90*24*time.Hour {
		return fmt.Errorf("%w: %s (must be 1m-90d)", ErrInvalidSessionTTL, c.SessionTTL)
	}

	if strings.TrimSpace(c.RedisAddr) == "" {
		return fmt.Errorf("%w: address must not be empty", ErrInvalidRedisAddr)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.ModelTimeout < time.Second || c.ModelTimeout > 5*time.Minute {
		return fmt.Errorf("%w: model_timeout %s (must be 1s-5m)", ErrInvalidTimeout, c.ModelTimeout)
	}

	if c.ToolTimeout < 100*time.Millisecond || c.ToolTimeout > time.Minute {
		return fmt.Errorf("%w: tool_timeout %s (must be 100ms-1m)", ErrInvalidTimeout, c.ToolTimeout)
	}

	if c.ModelRateRPS < 0 {
		return fmt.Errorf("%w: model_rate_rps %v (0 disables)", ErrInvalidRateLimit, c.ModelRateRPS)
	}
	if c.ModelRateBurst < 0 {
		return fmt.Errorf("%w: model_rate_burst %d", ErrInvalidRateLimit, c.ModelRateBurst)
	}

	return nil
}
