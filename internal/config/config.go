// Package config reads the bot settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/handsomefox/kinochat/internal/kinopoisk"
	"github.com/handsomefox/kinochat/internal/logger"
)

const (
	defaultDBPath  = "./data/users.db"
	defaultLogFile = "app.log"
	defaultAddr    = ":8080"
	defaultWorkers = 16
)

type Config struct {
	TelegramToken  string
	KinopoiskToken string
	KinopoiskURL   string
	TenorKey       string

	// BotUsername always starts with "@" when set.
	BotUsername string
	AdminIDs    []int64

	DBPath        string
	LegacyGroupID int64

	LogLevel slog.Level
	LogFile  string

	HTTPAddr      string
	WebhookURL    string
	WebhookSecret string
	Workers       int
}

// Load reads the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads settings through lookupEnv. All problems are reported at once.
func LoadFrom(lookupEnv func(string) (string, bool)) (*Config, error) {
	getenv := func(key string) string {
		v, _ := lookupEnv(key)
		return v
	}
	envOr := func(key, fallback string) string {
		if val := strings.TrimSpace(getenv(key)); val != "" {
			return val
		}
		return fallback
	}

	cfg := &Config{
		TelegramToken:  strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN")),
		KinopoiskToken: strings.TrimSpace(getenv("KINOPOISK_API_TOKEN")),
		KinopoiskURL:   envOr("KINOPOISK_BASE_URL", kinopoisk.DefaultBaseURL),
		TenorKey:       strings.TrimSpace(getenv("TENOR_API_KEY")),
		BotUsername:    normalizeUsername(getenv("BOT_USERNAME")),
		DBPath:         envOr("DB_PATH", defaultDBPath),
		HTTPAddr:       envOr("HTTP_ADDR", defaultAddr),
		WebhookURL:     strings.TrimSpace(getenv("WEBHOOK_URL")),
		WebhookSecret:  strings.TrimSpace(getenv("WEBHOOK_SECRET")),
		Workers:        defaultWorkers,
	}
	// An explicitly empty LOG_FILE disables file logging.
	cfg.LogFile = defaultLogFile
	if v, ok := lookupEnv("LOG_FILE"); ok {
		cfg.LogFile = strings.TrimSpace(v)
	}

	var errs []error
	if cfg.TelegramToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if cfg.KinopoiskToken == "" {
		errs = append(errs, errors.New("KINOPOISK_API_TOKEN is required"))
	}

	ids, err := parseIDs(getenv("ADMIN_USER_ID"))
	if err != nil {
		errs = append(errs, fmt.Errorf("ADMIN_USER_ID: %w", err))
	}
	cfg.AdminIDs = ids

	if v := strings.TrimSpace(getenv("LEGACY_GROUP_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("LEGACY_GROUP_ID: %w", err))
		}
		cfg.LegacyGroupID = id
	}

	lvl, err := logger.ParseLevel(getenv("LOG_LEVEL"))
	if err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	cfg.LogLevel = lvl

	if v := strings.TrimSpace(getenv("UPDATE_WORKERS")); v != "" {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("UPDATE_WORKERS: %w", err))
		case n < 1:
			errs = append(errs, fmt.Errorf("UPDATE_WORKERS: must be positive, got %d", n))
		default:
			cfg.Workers = n
		}
	}

	if cfg.WebhookURL != "" && !strings.HasPrefix(cfg.WebhookURL, "https://") {
		errs = append(errs, errors.New("WEBHOOK_URL: must be an https URL"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// IsAdmin reports whether userID may use admin commands.
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.AdminIDs, userID)
}

// Webhook reports whether updates arrive by webhook instead of long polling.
func (c *Config) Webhook() bool { return c.WebhookURL != "" }

func normalizeUsername(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "@") {
		return s
	}
	return "@" + s
}

func parseIDs(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}
