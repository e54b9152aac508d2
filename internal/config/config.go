package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal      = "local"
	EnvProduction = "production"
)

type Config struct {
	Env        string     `yaml:"env" env:"ENV" env-default:"production"`
	HTTPServer HTTPServer `yaml:"http_server"`
	JWTSecret  string     `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"super_secret_key"`
	Database   Database   `yaml:"database"`
	PGSQL      PQSQL      `yaml:"pgsql"`
	Redis      Redis      `yaml:"redis"`
	MinIO      MinIO      `yaml:"minio"`
	Media      Media      `yaml:"media"`
	Processing Processing `yaml:"processing"`
	RateLimit  RateLimit  `yaml:"ratelimit"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	ReadTimeout     time.Duration `yaml:"read_header_timeout" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"10s"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:"," env-default:"*"`
}

// Database selects the metadata store backend.
type Database struct {
	Driver     string `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"videos.db"`
}

type PQSQL struct {
	Host     string `yaml:"host" env:"PG_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"PG_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"PG_USER" env-default:"postgres"`
	Password string `yaml:"password" env:"PG_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"PG_DBNAME" env-default:"videos_db"`
	SSLMode  string `yaml:"sslmode" env:"PG_SSLMODE" env-default:"disable"`
}

// DSN returns the lib/pq connection string.
func (p PQSQL) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// Redis is optional; an empty address disables caching and rate limiting.
type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// MinIO is optional; an empty endpoint keeps thumbnails on local disk only.
type MinIO struct {
	Endpoint        string        `yaml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKeyID     string        `yaml:"access_key_id" env:"MINIO_ACCESS_KEY_ID"`
	SecretAccessKey string        `yaml:"secret_access_key" env:"MINIO_SECRET_ACCESS_KEY"`
	BucketName      string        `yaml:"bucket_name" env:"MINIO_BUCKET" env-default:"thumbnails"`
	UseSSL          bool          `yaml:"use_ssl" env:"MINIO_USE_SSL" env-default:"false"`
	PresignTTL      time.Duration `yaml:"presign_ttl" env-default:"1h"`
}

type Media struct {
	UploadDir         string   `yaml:"upload_dir" env:"UPLOAD_DIR" env-default:"uploads"`
	ProcessedDir      string   `yaml:"processed_dir" env:"PROCESSED_DIR" env-default:"processed"`
	ThumbnailDir      string   `yaml:"thumbnail_dir" env:"THUMBNAIL_DIR" env-default:"thumbnails"`
	ChunkSize         int      `yaml:"chunk_size" env-default:"1048576"`
	MaxUploadBytes    int64    `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"0"`
	AllowedExtensions []string `yaml:"allowed_extensions" env-default:".mp4,.avi,.mov,.mkv,.webm,.flv"`
}

type Processing struct {
	Workers         int           `yaml:"workers" env:"PROCESSING_WORKERS" env-default:"2"`
	QueueSize       int           `yaml:"queue_size" env-default:"64"`
	FFmpegPath      string        `yaml:"ffmpeg_path" env:"FFMPEG_PATH" env-default:"ffmpeg"`
	FFprobePath     string        `yaml:"ffprobe_path" env:"FFPROBE_PATH" env-default:"ffprobe"`
	ThumbnailOffset time.Duration `yaml:"thumbnail_offset" env-default:"1s"`
	Timeout         time.Duration `yaml:"timeout" env-default:"10m"`
	StaleAfter      time.Duration `yaml:"stale_after" env-default:"30m"`
	SweepInterval   time.Duration `yaml:"sweep_interval" env-default:"1m"`
}

type RateLimit struct {
	UploadsPerMinute int64 `yaml:"uploads_per_minute" env-default:"10"`
}

// Load reads the config file at path, applying env overrides and defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file does not exist at path %s: %w", path, err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")

	if configPath == "" {
		flags := flag.String("config", "", "Path to config file")
		flag.Parse()
		configPath = *flags

		if configPath == "" {
			log.Fatal("config path must be provided")
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	return cfg
}
