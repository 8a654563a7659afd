package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	AWS           AWSConfig
	Transcription TranscriptionConfig
	Capture       CaptureConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/lecturehall?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the transcript export bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	TranscriptsBucket    string
	PresignExpireMinutes int
}

// TranscriptionConfig holds the transcription pipeline settings.
//
// MinAudioSeconds/MaxAudioSeconds and the PCM parameters must agree with the
// audio buffer's byte-based duration estimate: accumulated seconds are
// computed as bytes / (SampleRate * Channels * BytesPerSample).
type TranscriptionConfig struct {
	APIURL          string // OpenAI-compatible /audio/transcriptions endpoint
	APIKey          string
	Model           string
	Language        string
	IntervalSec     int     // tick interval while recording
	MinAudioSeconds float64 // drain threshold
	MaxAudioSeconds float64 // eviction cap for buffered audio
	SampleRate      int
	Channels        int
	BytesPerSample  int
}

// CaptureConfig lists the capture sources offered to clients.
type CaptureConfig struct {
	Sources []string // comma-separated in env: microphone,desktop,mixed
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/lecturehall?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "lecturehall"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			TranscriptsBucket:    getEnv("AWS_S3_TRANSCRIPTS_BUCKET", "lecturehall-transcripts"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Transcription: TranscriptionConfig{
			APIURL:          getEnv("TRANSCRIPTION_API_URL", "https://api.openai.com/v1/audio/transcriptions"),
			APIKey:          getEnv("TRANSCRIPTION_API_KEY", ""),
			Model:           getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
			Language:        getEnv("TRANSCRIPTION_LANGUAGE", "en"),
			IntervalSec:     getEnvInt("TRANSCRIPTION_INTERVAL_SEC", 5),
			MinAudioSeconds: getEnvFloat("TRANSCRIPTION_MIN_AUDIO_SEC", 1),
			MaxAudioSeconds: getEnvFloat("TRANSCRIPTION_MAX_AUDIO_SEC", 30),
			SampleRate:      getEnvInt("TRANSCRIPTION_SAMPLE_RATE", 16000),
			Channels:        getEnvInt("TRANSCRIPTION_CHANNELS", 1),
			BytesPerSample:  getEnvInt("TRANSCRIPTION_BYTES_PER_SAMPLE", 2),
		},
		Capture: CaptureConfig{
			Sources: splitTrim(getEnv("CAPTURE_SOURCES", "microphone,desktop,mixed"), ","),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
