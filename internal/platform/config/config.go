package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more
// paths to load from specific files; with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or
// fallback if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by
// key, or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// Config collects every environment-driven setting the service uses.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	DownloadDir string
	SubtitleDir string
	TempDir     string
	RetainCount int

	YTDLPPath  string
	FFmpegPath string

	MetadataAPIKey    string
	AggregatorBaseURL string
	AggregatorAPIKey  string

	DefaultLanguage string

	MaxAttempts    int
	BaseDelay      time.Duration
	StreamInterval time.Duration
}

// FromEnv builds a Config from environment variables with the service's
// defaults. Call Load first to pull in a .env file.
func FromEnv() Config {
	return Config{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		DownloadDir: GetEnv("DOWNLOAD_DIR", "downloads"),
		SubtitleDir: GetEnv("SUBTITLE_DIR", "subtitles"),
		TempDir:     GetEnv("TEMP_DIR", "temp"),
		RetainCount: GetEnvInt("RETAIN_COUNT", 20),

		YTDLPPath:  GetEnv("YTDLP_PATH", "yt-dlp"),
		FFmpegPath: GetEnv("FFMPEG_PATH", ""),

		MetadataAPIKey:    GetEnv("METADATA_API_KEY", ""),
		AggregatorBaseURL: GetEnv("AGGREGATOR_BASE_URL", ""),
		AggregatorAPIKey:  GetEnv("AGGREGATOR_API_KEY", ""),

		DefaultLanguage: GetEnv("DEFAULT_LANGUAGE", "en"),

		MaxAttempts:    GetEnvInt("MAX_ATTEMPTS", 3),
		BaseDelay:      time.Duration(GetEnvInt("BASE_DELAY_MS", 1000)) * time.Millisecond,
		StreamInterval: time.Duration(GetEnvInt("STREAM_INTERVAL_MS", 300)) * time.Millisecond,
	}
}
