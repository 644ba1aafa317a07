package config

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the server needs, resolved once at startup.
// Handlers receive it explicitly instead of reading the environment.
type Config struct {
	Port         string
	Debug        bool
	StorageDir   string // root for per-request job dirs and prepared files
	DatabasePath string
	FFmpegPath   string
	FFprobePath  string
	ToolTimeout  time.Duration // ceiling for a single external tool invocation
	MaxWorkers   int           // concurrent ffmpeg processes per request
	PreparedTTL  time.Duration // prepared downloads older than this are purged
}

// Load reads ./.env (if present) and then the process environment.
func Load() Config {
	loadEnvFile(".env")

	cfg := Config{
		Port:         getenv("APP_PORT", "3000"),
		Debug:        os.Getenv("APP_DEBUG") == "true",
		StorageDir:   getenv("STORAGE_DIR", "./storage"),
		DatabasePath: getenv("DATABASE_PATH", "./storage/downloads.db"),
		FFmpegPath:   getenv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:  getenv("FFPROBE_PATH", "ffprobe"),
		ToolTimeout:  getDuration("TOOL_TIMEOUT", 5*time.Minute),
		MaxWorkers:   getInt("MAX_WORKERS", runtime.NumCPU()),
		PreparedTTL:  getDuration("PREPARED_TTL", time.Hour),
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil && v > 0 {
		return v
	}
	return fallback
}

// loadEnvFile loads KEY=value lines into the process env. Quoted values are
// unwrapped; existing env vars win over file entries.
func loadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		val = strings.TrimSpace(val)
		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, val)
		}
	}
}
