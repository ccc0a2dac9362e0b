package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for our application
type Config struct {
	DiscordToken string
	DatabaseDSN  string

	// GuildID scopes slash-command registration to one guild when set;
	// commands are registered globally otherwise.
	GuildID string

	LogLevel string

	// TimezoneOffsetHours is the fixed civil zone used for schedule
	// datetimes entered by admins. Everything past the command boundary
	// is UTC epoch milliseconds.
	TimezoneOffsetHours int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// .env file is optional, continue with environment variables
	}

	config := &Config{
		DiscordToken:        os.Getenv("DISCORD_TOKEN"),
		DatabaseDSN:         os.Getenv("DATABASE_DSN"),
		GuildID:             os.Getenv("GUILD_ID"),
		LogLevel:            os.Getenv("LOG_LEVEL"),
		TimezoneOffsetHours: 9,
	}

	if config.DiscordToken == "" {
		return nil, &ConfigError{Field: "DISCORD_TOKEN", Message: "DISCORD_TOKEN is required"}
	}

	if config.DatabaseDSN == "" {
		return nil, &ConfigError{Field: "DATABASE_DSN", Message: "DATABASE_DSN is required"}
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	if raw := os.Getenv("TIMEZONE_OFFSET_HOURS"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < -12 || offset > 14 {
			return nil, &ConfigError{Field: "TIMEZONE_OFFSET_HOURS", Message: "TIMEZONE_OFFSET_HOURS must be an integer between -12 and 14"}
		}
		config.TimezoneOffsetHours = offset
	}

	return config, nil
}

// Location returns the fixed civil zone for schedule datetimes.
func (c *Config) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.TimezoneOffsetHours), c.TimezoneOffsetHours*3600)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
