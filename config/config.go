package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendAzTables = "aztables"
	BackendMemory   = "memory"
)

// DefaultTemplateFeed is the public task template feed.
const DefaultTemplateFeed = "https://ricardojrhermogino.github.io/json_server_host_api/tasksdb.json"

// Server is the task service configuration.
type Server struct {
	ListenAddr           string
	Backend              string
	DBPath               string
	StorageConnString    string
	TasksTable           string
	TaskEventsQueue      string
	RedisConnString      string
	TasksCacheTTL        time.Duration
	TaskIDReservationTTL time.Duration
	BodyLimit            int64
	Debug                bool
	LogFormat            string
}

// Client is the taskctl configuration.
type Client struct {
	APIURL       string
	TemplateFeed string
	IdentityFile string
	Debug        bool
	LogFormat    string
}

// Lookup reads one variable.
type Lookup func(key string) (string, bool)

// LoadDotEnv reads the given .env files (default ".env") into the process
// environment. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.WithField("file", f).Debug("no env file")
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// LoadServer reads the service configuration from the environment.
func LoadServer() (Server, error) {
	return ServerFrom(os.LookupEnv)
}

// ServerFrom builds a Server configuration from lookup.
func ServerFrom(lookup Lookup) (Server, error) {
	get := getter(lookup)
	cfg := Server{
		ListenAddr:        get("LISTEN_ADDR", ""),
		Backend:           strings.ToLower(get("STORAGE_BACKEND", BackendSQLite)),
		DBPath:            get("DB_PATH", "tasks.db"),
		StorageConnString: get("STORAGE_CONNECTION_STRING", ""),
		TasksTable:        get("TASKS_TABLE", "tasks"),
		TaskEventsQueue:   get("TASK_EVENTS_QUEUE", ""),
		RedisConnString:   get("REDIS_CONNECTION_STRING", ""),
		LogFormat:         get("LOG_FORMAT", "text"),
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
		if port := get("PORT", ""); port != "" {
			cfg.ListenAddr = ":" + port
		}
	}

	var err error
	if cfg.Debug, err = parseBool("DEBUG", get("DEBUG", "")); err != nil {
		return Server{}, err
	}
	if cfg.TasksCacheTTL, err = parseDuration("TASKS_CACHE_TTL", get("TASKS_CACHE_TTL", "5m")); err != nil {
		return Server{}, err
	}
	if cfg.TaskIDReservationTTL, err = parseDuration("TASK_ID_RESERVATION_TTL", get("TASK_ID_RESERVATION_TTL", "24h")); err != nil {
		return Server{}, err
	}
	if cfg.BodyLimit, err = ParseSize(get("BODY_LIMIT", "64KiB")); err != nil {
		return Server{}, fmt.Errorf("invalid BODY_LIMIT: %w", err)
	}

	switch cfg.Backend {
	case BackendSQLite:
		if cfg.DBPath == "" {
			return Server{}, errors.New("missing DB_PATH")
		}
	case BackendAzTables:
		if cfg.StorageConnString == "" || cfg.TasksTable == "" {
			return Server{}, errors.New("missing storage config: STORAGE_CONNECTION_STRING and TASKS_TABLE are required")
		}
	case BackendMemory:
	default:
		return Server{}, fmt.Errorf("invalid STORAGE_BACKEND %q", cfg.Backend)
	}
	if cfg.TaskEventsQueue != "" && cfg.StorageConnString == "" {
		return Server{}, errors.New("TASK_EVENTS_QUEUE requires STORAGE_CONNECTION_STRING")
	}
	if cfg.RedisConnString != "" {
		if _, err := RedisOptions(cfg.RedisConnString); err != nil {
			return Server{}, fmt.Errorf("invalid REDIS_CONNECTION_STRING: %w", err)
		}
	}
	return cfg, nil
}

// LoadClient reads the taskctl configuration from the environment.
func LoadClient() (Client, error) {
	return ClientFrom(os.LookupEnv)
}

func ClientFrom(lookup Lookup) (Client, error) {
	get := getter(lookup)
	cfg := Client{
		APIURL:       strings.TrimRight(get("TASKS_API_URL", "http://localhost:8080"), "/"),
		TemplateFeed: get("TEMPLATE_FEED_URL", DefaultTemplateFeed),
		IdentityFile: get("IDENTITY_FILE", ""),
		LogFormat:    get("LOG_FORMAT", "text"),
	}
	var err error
	if cfg.Debug, err = parseBool("DEBUG", get("DEBUG", "")); err != nil {
		return Client{}, err
	}
	if cfg.IdentityFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Client{}, fmt.Errorf("missing IDENTITY_FILE: %w", err)
		}
		cfg.IdentityFile = filepath.Join(dir, "weather-tasks", "device-id")
	}
	return cfg, nil
}

// ConfigureLogger applies DEBUG and LOG_FORMAT to logger.
func ConfigureLogger(logger *log.Logger, debug bool, format string) {
	if debug {
		logger.SetLevel(log.DebugLevel)
	}
	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	}
}

// RedisOptions accepts a redis:// URL or the Azure
// "host:port,password=...,ssl=True" form.
func RedisOptions(connStr string) (*redis.Options, error) {
	opts, err := redis.ParseURL(connStr)
	if err == nil {
		return opts, nil
	}
	parts := strings.Split(connStr, ",")
	addr := strings.TrimSpace(parts[0])
	if addr == "" || strings.Contains(addr, "://") {
		return nil, err
	}
	opts = &redis.Options{Addr: addr}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

var sizeUnits = []struct {
	suffix string
	mult   int64
}{
	{"KiB", 1 << 10},
	{"MiB", 1 << 20},
	{"KB", 1000},
	{"MB", 1000 * 1000},
	{"K", 1 << 10},
	{"M", 1 << 20},
	{"B", 1},
}

// ParseSize parses a byte count such as "65536", "64KiB" or "1M".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	mult := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be greater than zero")
	}
	return n * mult, nil
}

func getter(lookup Lookup) func(key, def string) string {
	return func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
}

func parseBool(key, v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parseDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return d, nil
}
