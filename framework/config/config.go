package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the central typed configuration struct.
type Config struct {
	App       AppConfig
	Singleton SingletonConfig
	Log       LogConfig
}

type AppConfig struct {
	Name  string
	Env   string // local | production | testing
	Debug bool
	Port  string
}

// SingletonConfig drives the default arena and the registry.
type SingletonConfig struct {
	// Strict makes Dispose of a non-disposable hierarchy fail. Defaults to
	// App.Debug.
	Strict bool
	// AutoReset is the default handed to newly adopted instances.
	AutoReset bool
	// PolicyFile is an optional TOML policy table.
	PolicyFile string
	// InitWorkers bounds concurrent creation in Registry.Initialize.
	InitWorkers int
}

type LogConfig struct {
	Level  string // debug | info | warn | error
	Format string // text | json
}

// Load reads .env (if present) and populates a Config from environment variables.
// Call once at bootstrap: cfg := config.Load()
func Load(envFiles ...string) *Config {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env may not exist in production
	_ = godotenv.Load(files...)

	debug := envBool("APP_DEBUG", true)
	return &Config{
		App: AppConfig{
			Name:  env("APP_NAME", "GoSingleton"),
			Env:   env("APP_ENV", "local"),
			Debug: debug,
			Port:  env("APP_PORT", "8000"),
		},
		Singleton: SingletonConfig{
			Strict:      envBool("SINGLETON_STRICT", debug),
			AutoReset:   envBool("SINGLETON_AUTO_RESET", true),
			PolicyFile:  env("SINGLETON_POLICY_FILE", ""),
			InitWorkers: GetInt("SINGLETON_INIT_WORKERS", 4),
		},
		Log: LogConfig{
			Level:  strings.ToLower(env("LOG_LEVEL", "info")),
			Format: strings.ToLower(env("LOG_FORMAT", "text")),
		},
	}
}

// Get returns a raw env value, falling back to defaultVal.
func Get(key, defaultVal string) string {
	return env(key, defaultVal)
}

// GetInt returns an int env value.
func GetInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// GetBool returns a bool env value.
func GetBool(key string, defaultVal bool) bool {
	return envBool(key, defaultVal)
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
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
