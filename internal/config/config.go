package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Upload   UploadConfig
	Auth     AuthConfig
	Sweep    SweepConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	Schema       string
	SSLMode      string
	MaxOpenConns int
}

// StorageConfig locates the public image store. Images are written below
// Root/ImageFolder and served as PublicBaseURL/<stored path>.
type StorageConfig struct {
	Root          string
	PublicBaseURL string
	ImageFolder   string
}

type UploadConfig struct {
	MaxFileKB    int
	MaxRequestMB int
}

type AuthConfig struct {
	JWTSecret    string
	OperatorRole string
}

type SweepConfig struct {
	GracePeriod time.Duration
}

// IsDevelopment reports whether the server runs outside production
func (c *Config) IsDevelopment() bool {
	return c.Server.Env != "production"
}

func Load() *Config {
	// Local overrides win over .env because godotenv never replaces
	// variables that are already set.
	if err := godotenv.Load(".env.local"); err == nil {
		log.Printf("Loaded overrides from .env.local")
	}

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("SERVER_ALLOWED_ORIGINS", "http://localhost:5173")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 10)
	viper.SetDefault("STORAGE_ROOT", "storage/app/public")
	viper.SetDefault("STORAGE_PUBLIC_BASE_URL", "http://localhost:8080/storage")
	viper.SetDefault("STORAGE_IMAGE_FOLDER", "product_images")
	viper.SetDefault("UPLOAD_MAX_FILE_KB", 2048)
	viper.SetDefault("UPLOAD_MAX_REQUEST_MB", 32)
	viper.SetDefault("AUTH_OPERATOR_ROLE", "admin")
	viper.SetDefault("SWEEP_GRACE_PERIOD", "1h")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(viper.GetString("SERVER_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:         viper.GetString("DB_HOST"),
			Port:         viper.GetString("DB_PORT"),
			User:         viper.GetString("DB_USER"),
			Password:     viper.GetString("DB_PASSWORD"),
			Database:     viper.GetString("DB_DATABASE"),
			Schema:       viper.GetString("DB_SCHEMA"),
			SSLMode:      viper.GetString("DB_SSLMODE"),
			MaxOpenConns: viper.GetInt("DB_MAX_OPEN_CONNS"),
		},
		Storage: StorageConfig{
			Root:          viper.GetString("STORAGE_ROOT"),
			PublicBaseURL: strings.TrimRight(viper.GetString("STORAGE_PUBLIC_BASE_URL"), "/"),
			ImageFolder:   viper.GetString("STORAGE_IMAGE_FOLDER"),
		},
		Upload: UploadConfig{
			MaxFileKB:    viper.GetInt("UPLOAD_MAX_FILE_KB"),
			MaxRequestMB: viper.GetInt("UPLOAD_MAX_REQUEST_MB"),
		},
		Auth: AuthConfig{
			JWTSecret:    viper.GetString("AUTH_JWT_SECRET"),
			OperatorRole: viper.GetString("AUTH_OPERATOR_ROLE"),
		},
		Sweep: SweepConfig{
			GracePeriod: viper.GetDuration("SWEEP_GRACE_PERIOD"),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
