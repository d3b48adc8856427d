package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	Storage  StorageConfig  `mapstructure:"Storage"`
	Auth     AuthConfig     `mapstructure:"Auth"`
	Events   EventsConfig   `mapstructure:"Events"`
	Redis    RedisConfig    `mapstructure:"Redis"`
	Log      LogConfig      `mapstructure:"Log"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"Port"`
	GRPCPort       string        `mapstructure:"GRPCPort"`
	BaseURL        string        `mapstructure:"BaseURL"`
	RequestTimeout time.Duration `mapstructure:"RequestTimeout"`
	TrustedProxies []string      `mapstructure:"TrustedProxies"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"Host"`
	Port           string `mapstructure:"Port"`
	User           string `mapstructure:"User"`
	Password       string `mapstructure:"Password"`
	Name           string `mapstructure:"Name"`
	SSLMode        string `mapstructure:"SSLMode"`
	MaxOpenConns   int    `mapstructure:"MaxOpenConns"`
	MaxIdleConns   int    `mapstructure:"MaxIdleConns"`
	MigrationsPath string `mapstructure:"MigrationsPath"`
}

type StorageConfig struct {
	Driver         string `mapstructure:"Driver"`
	Dir            string `mapstructure:"Dir"`
	MaxUploadBytes int64  `mapstructure:"MaxUploadBytes"`
	S3Bucket       string `mapstructure:"S3Bucket"`
	S3Endpoint     string `mapstructure:"S3Endpoint"`
	S3Region       string `mapstructure:"S3Region"`
	S3AccessKeyID  string `mapstructure:"S3AccessKeyID"`
	S3SecretKey    string `mapstructure:"S3SecretKey"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"JWTSecret"`
}

type EventsConfig struct {
	Driver       string   `mapstructure:"Driver"`
	NATSURL      string   `mapstructure:"NATSURL"`
	KafkaBrokers []string `mapstructure:"KafkaBrokers"`
	KafkaTopic   string   `mapstructure:"KafkaTopic"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"Addr"`
	Password     string        `mapstructure:"Password"`
	VerifyLimit  int           `mapstructure:"VerifyLimit"`
	VerifyWindow time.Duration `mapstructure:"VerifyWindow"`
}

type LogConfig struct {
	Level string `mapstructure:"Level"`
	JSON  bool   `mapstructure:"JSON"`
}

var envBindings = map[string]string{
	"Server.Port":             "HTTP_PORT",
	"Server.GRPCPort":         "GRPC_PORT",
	"Server.BaseURL":          "BASE_URL",
	"Server.RequestTimeout":   "REQUEST_TIMEOUT",
	"Server.TrustedProxies":   "TRUSTED_PROXIES",
	"Database.Host":           "DATABASE_HOST",
	"Database.Port":           "DATABASE_PORT",
	"Database.User":           "DATABASE_USER",
	"Database.Password":       "DATABASE_PASSWORD",
	"Database.Name":           "DATABASE_NAME",
	"Database.SSLMode":        "DATABASE_SSLMODE",
	"Database.MaxOpenConns":   "DATABASE_MAX_OPEN_CONNS",
	"Database.MaxIdleConns":   "DATABASE_MAX_IDLE_CONNS",
	"Database.MigrationsPath": "DATABASE_MIGRATIONS_PATH",
	"Storage.Driver":          "STORAGE_DRIVER",
	"Storage.Dir":             "STORAGE_DIR",
	"Storage.MaxUploadBytes":  "STORAGE_MAX_UPLOAD_BYTES",
	"Storage.S3Bucket":        "S3_BUCKET",
	"Storage.S3Endpoint":      "S3_ENDPOINT",
	"Storage.S3Region":        "S3_REGION",
	"Storage.S3AccessKeyID":   "S3_ACCESS_KEY_ID",
	"Storage.S3SecretKey":     "S3_SECRET_ACCESS_KEY",
	"Auth.JWTSecret":          "JWT_SECRET",
	"Events.Driver":           "EVENTS_DRIVER",
	"Events.NATSURL":          "NATS_URL",
	"Events.KafkaBrokers":     "KAFKA_BROKERS",
	"Events.KafkaTopic":       "KAFKA_TOPIC",
	"Redis.Addr":              "REDIS_ADDR",
	"Redis.Password":          "REDIS_PASSWORD",
	"Redis.VerifyLimit":       "VERIFY_RATE_LIMIT",
	"Redis.VerifyWindow":      "VERIFY_RATE_WINDOW",
	"Log.Level":               "LOG_LEVEL",
	"Log.JSON":                "LOG_JSON",
}

// Load reads an optional config file, then .env, then the process environment.
// An empty path skips the config file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Env values for slices arrive as a single comma separated string.
	cfg.Events.KafkaBrokers = splitList(cfg.Events.KafkaBrokers)
	cfg.Server.TrustedProxies = splitList(cfg.Server.TrustedProxies)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func splitList(values []string) []string {
	if len(values) == 1 && strings.Contains(values[0], ",") {
		return strings.Split(values[0], ",")
	}
	return values
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.GRPCPort", "50051")
	v.SetDefault("Server.BaseURL", "http://localhost:3000")
	v.SetDefault("Server.RequestTimeout", 60*time.Second)

	v.SetDefault("Database.Host", "localhost")
	v.SetDefault("Database.Port", "5432")
	v.SetDefault("Database.User", "postgres")
	v.SetDefault("Database.Password", "postgres")
	v.SetDefault("Database.Name", "notarypro")
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Database.MaxOpenConns", 25)
	v.SetDefault("Database.MaxIdleConns", 5)
	v.SetDefault("Database.MigrationsPath", "migrations")

	v.SetDefault("Storage.Driver", "local")
	v.SetDefault("Storage.Dir", "uploads")
	v.SetDefault("Storage.MaxUploadBytes", 15*1024*1024)
	v.SetDefault("Storage.S3Region", "us-east-1")

	v.SetDefault("Events.Driver", "none")
	v.SetDefault("Events.KafkaTopic", "notary.events")

	v.SetDefault("Redis.VerifyLimit", 60)
	v.SetDefault("Redis.VerifyWindow", time.Minute)

	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.JSON", false)
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth configuration is incomplete: JWT_SECRET is required")
	}

	switch c.Storage.Driver {
	case "local":
	case "s3":
		if c.Storage.S3Bucket == "" || c.Storage.S3AccessKeyID == "" || c.Storage.S3SecretKey == "" {
			return fmt.Errorf("s3 storage requires bucket, access key id and secret key")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Events.Driver {
	case "none":
	case "nats":
		if c.Events.NATSURL == "" {
			return fmt.Errorf("nats events driver requires NATS_URL")
		}
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka events driver requires KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("unknown events driver %q", c.Events.Driver)
	}

	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("storage max upload bytes must be positive, got %d", c.Storage.MaxUploadBytes)
	}

	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// MigrateURL is the URL form golang-migrate expects.
func (c *DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}
