package util

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

func GetEnvironmentVariables() map[string]string {
	environmentVariables := map[string]string{}

	for _, variable := range os.Environ() {
		pair := strings.SplitN(variable, "=", 2)

		environmentVariables[pair[0]] = pair[1]
	}

	return environmentVariables
}

// EnvString returns the environment variable or def when unset
func EnvString(env map[string]string, key string, def string) string {
	if value := env[key]; value != "" {
		return value
	}
	return def
}

func EnvInt(env map[string]string, key string, def int) int {
	value := env[key]
	if value == "" {
		return def
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid integer environment variable")
		return def
	}
	return parsed
}

func EnvFloat(env map[string]string, key string, def float64) float64 {
	value := env[key]
	if value == "" {
		return def
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid float environment variable")
		return def
	}
	return parsed
}

func EnvDuration(env map[string]string, key string, def time.Duration) time.Duration {
	value := env[key]
	if value == "" {
		return def
	}

	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid duration environment variable")
		return def
	}
	return parsed
}
