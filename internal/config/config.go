package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds process configuration, loaded from the environment with an
// optional .env file.
type Config struct {
	// Redis backing store for per-chat queues.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SQLite database for repair audit logs.
	DatabasePath string

	// External binaries.
	FFmpegPath string
	YtDlpPath  string

	// Playback limits.
	MaxQueueSize    int
	MaxPlaylistSize int

	// Logging.
	LogLevel string
	LogFile  string
}

// LoadConfig reads configuration from the environment. A missing .env file
// is not an error; explicit environment variables always win.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		DatabasePath:    getEnv("DATABASE_PATH", "ongaku.db"),
		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		YtDlpPath:       getEnv("YTDLP_PATH", "yt-dlp"),
		MaxQueueSize:    getEnvInt("MAX_QUEUE_SIZE", 50),
		MaxPlaylistSize: getEnvInt("MAX_PLAYLIST_SIZE", 50),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         os.Getenv("LOG_FILE"),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
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
