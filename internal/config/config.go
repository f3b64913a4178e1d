// Package config содержит логику чтения конфигурации сервиса хранения и клиента.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mmeshcher/ludex-store/internal/prefs"
)

// ReminderDisabled - значение расписания, отключающее напоминания.
const ReminderDisabled = "off"

// ErrMissingAccessKey возвращается, если ключ доступа не задан.
var ErrMissingAccessKey = errors.New("access key is required (STORE_ACCESS_KEY or -k)")

// ErrMissingStoreURL возвращается, если адрес сервиса хранения не задан.
var ErrMissingStoreURL = errors.New("store URL is required (STORE_URL or -u)")

// Config содержит параметры конфигурации сервиса хранения.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	AccessKey        string `env:"STORE_ACCESS_KEY"`
	ReminderSchedule string `env:"REMINDER_SCHEDULE"`
}

// ReminderEnabled сообщает, нужно ли запускать напоминания.
func (c *Config) ReminderEnabled() bool {
	return c.ReminderSchedule != "" && c.ReminderSchedule != ReminderDisabled
}

// ClientConfig содержит параметры конфигурации клиента.
type ClientConfig struct {
	StoreURL        string `env:"STORE_URL"`
	AccessKey       string `env:"STORE_ACCESS_KEY"`
	PrefsPath       string `env:"PREFS_PATH"`
	CollationLocale string `env:"COLLATION_LOCALE"`
}

// loadDotEnv загружает переменные из .env, не перекрывая уже заданные.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Parse считывает конфигурацию сервиса из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAccessKey := cfg.AccessKey
	envReminderSchedule := cfg.ReminderSchedule

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI (empty keeps data in memory)")
	flag.StringVar(&cfg.AccessKey, "k", "", "access key required from clients")
	flag.StringVar(&cfg.ReminderSchedule, "s", "0 9 * * *", "cron schedule of the expiring subscriptions digest, \"off\" disables it")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAccessKey != "" {
		cfg.AccessKey = envAccessKey
	}
	if envReminderSchedule != "" {
		cfg.ReminderSchedule = envReminderSchedule
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.AccessKey == "" {
		return nil, ErrMissingAccessKey
	}

	return cfg, nil
}

// ParseClient считывает конфигурацию клиента из args и переменных окружения
// и возвращает оставшиеся аргументы команды.
func ParseClient(flags *flag.FlagSet, args []string) (*ClientConfig, []string, error) {
	if err := loadDotEnv(); err != nil {
		return nil, nil, err
	}

	cfg := &ClientConfig{}

	if err := env.Parse(cfg); err != nil {
		return nil, nil, fmt.Errorf("parse env: %w", err)
	}

	envStoreURL := cfg.StoreURL
	envAccessKey := cfg.AccessKey
	envPrefsPath := cfg.PrefsPath
	envLocale := cfg.CollationLocale

	flags.StringVar(&cfg.StoreURL, "u", "", "store service URL")
	flags.StringVar(&cfg.AccessKey, "k", "", "store access key")
	flags.StringVar(&cfg.PrefsPath, "p", prefs.DefaultPath(), "preferences file")
	flags.StringVar(&cfg.CollationLocale, "l", "ar", "locale used to order product names")

	if err := flags.Parse(args); err != nil {
		return nil, nil, err
	}

	if envStoreURL != "" {
		cfg.StoreURL = envStoreURL
	}
	if envAccessKey != "" {
		cfg.AccessKey = envAccessKey
	}
	if envPrefsPath != "" {
		cfg.PrefsPath = envPrefsPath
	}
	if envLocale != "" {
		cfg.CollationLocale = envLocale
	}

	if cfg.StoreURL == "" {
		return nil, nil, ErrMissingStoreURL
	}
	if cfg.AccessKey == "" {
		return nil, nil, ErrMissingAccessKey
	}

	return cfg, flags.Args(), nil
}
