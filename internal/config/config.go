package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       *AppConfig       `yaml:"app"`
	Database  *DatabaseConfig  `yaml:"database"`
	Redis     *RedisConfig     `yaml:"redis"`
	Security  *SecurityConfig  `yaml:"security"`
	Tracking  *TrackingConfig  `yaml:"tracking"`
	Push      *PushConfig      `yaml:"push"`
	SMS       *SMSConfig       `yaml:"sms"`
	Stream    *StreamConfig    `yaml:"stream"`
	WebSocket *WebSocketConfig `yaml:"websocket"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	Port        int    `yaml:"port"`
	Host        string `yaml:"host"`
	Debug       bool   `yaml:"debug"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

type DatabaseConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	MaxPoolSize    int           `yaml:"max_pool_size"`
	MinPoolSize    int           `yaml:"min_pool_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SocketTimeout  time.Duration `yaml:"socket_timeout"`
}

type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type SecurityConfig struct {
	JWTSecret          string   `yaml:"jwt_secret"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	TrustedProxies     []string `yaml:"trusted_proxies"`
}

type TrackingConfig struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	RateBurst      int           `yaml:"rate_burst"`
	TimelineCap    int           `yaml:"timeline_cap"`
}

type PushConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Provider           string `yaml:"provider"` // fcm, apns
	FCMCredentialsFile string `yaml:"fcm_credentials_file"`
	APNSKeyFile        string `yaml:"apns_key_file"`
	APNSKeyID          string `yaml:"apns_key_id"`
	APNSTeamID         string `yaml:"apns_team_id"`
	APNSTopic          string `yaml:"apns_topic"`
	APNSProduction     bool   `yaml:"apns_production"`
}

type SMSConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Provider         string `yaml:"provider"` // twilio, sns
	TwilioAccountSID string `yaml:"twilio_account_sid"`
	TwilioAuthToken  string `yaml:"twilio_auth_token"`
	TwilioFromNumber string `yaml:"twilio_from_number"`
	AWSRegion        string `yaml:"aws_region"`
}

type StreamConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	WriteWait       time.Duration `yaml:"write_wait"`
	PongWait        time.Duration `yaml:"pong_wait"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
}

// Load builds the configuration from environment variables. When
// CONFIG_FILE points at a YAML file, its values are applied first and
// the environment overrides them.
func Load() (*Config, error) {
	config := &Config{
		App:       loadAppConfig(),
		Database:  loadDatabaseConfig(),
		Redis:     loadRedisConfig(),
		Security:  loadSecurityConfig(),
		Tracking:  loadTrackingConfig(),
		Push:      loadPushConfig(),
		SMS:       loadSMSConfig(),
		Stream:    loadStreamConfig(),
		WebSocket: loadWebSocketConfig(),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// File values fill in only what the environment left at defaults.
	if fileConfig.Database != nil && os.Getenv("MONGODB_URI") == "" && fileConfig.Database.URI != "" {
		config.Database.URI = fileConfig.Database.URI
	}
	if fileConfig.Database != nil && os.Getenv("MONGODB_DATABASE") == "" && fileConfig.Database.Database != "" {
		config.Database.Database = fileConfig.Database.Database
	}
	if fileConfig.Security != nil && os.Getenv("JWT_SECRET") == "" && fileConfig.Security.JWTSecret != "" {
		config.Security.JWTSecret = fileConfig.Security.JWTSecret
	}
	if fileConfig.Stream != nil && os.Getenv("KAFKA_BROKERS") == "" && len(fileConfig.Stream.Brokers) > 0 {
		config.Stream.Brokers = fileConfig.Stream.Brokers
		config.Stream.Enabled = fileConfig.Stream.Enabled
	}

	return nil
}

func loadAppConfig() *AppConfig {
	return &AppConfig{
		Name:        getEnv("APP_NAME", "RidePool"),
		Version:     getEnv("APP_VERSION", "1.0.0"),
		Environment: getEnv("APP_ENV", "development"),
		Port:        getEnvAsInt("APP_PORT", 8080),
		Host:        getEnv("APP_HOST", "localhost"),
		Debug:       getEnvAsBool("APP_DEBUG", true),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
	}
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		Database:       getEnv("MONGODB_DATABASE", "ridepool"),
		MaxPoolSize:    getEnvAsInt("MONGODB_MAX_POOL_SIZE", 100),
		MinPoolSize:    getEnvAsInt("MONGODB_MIN_POOL_SIZE", 5),
		ConnectTimeout: getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
		SocketTimeout:  getEnvAsDuration("MONGODB_SOCKET_TIMEOUT", 30*time.Second),
	}
}

func loadRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:         getEnv("REDIS_HOST", "localhost"),
		Port:         getEnvAsInt("REDIS_PORT", 6379),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           getEnvAsInt("REDIS_DB", 0),
		PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func loadSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		JWTSecret:          getEnv("JWT_SECRET", "change-me-in-production"),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		TrustedProxies:     getEnvAsSlice("TRUSTED_PROXIES", nil),
	}
}

func loadTrackingConfig() *TrackingConfig {
	return &TrackingConfig{
		SampleInterval: getEnvAsDuration("TRACKING_SAMPLE_INTERVAL", 30*time.Second),
		RatePerSecond:  getEnvAsFloat("TRACKING_RATE_PER_SECOND", 1.0),
		RateBurst:      getEnvAsInt("TRACKING_RATE_BURST", 3),
		TimelineCap:    getEnvAsInt("TRACKING_TIMELINE_CAP", 500),
	}
}

func loadPushConfig() *PushConfig {
	return &PushConfig{
		Enabled:            getEnvAsBool("PUSH_ENABLED", false),
		Provider:           getEnv("PUSH_PROVIDER", "fcm"),
		FCMCredentialsFile: getEnv("FCM_CREDENTIALS_FILE", ""),
		APNSKeyFile:        getEnv("APNS_KEY_FILE", ""),
		APNSKeyID:          getEnv("APNS_KEY_ID", ""),
		APNSTeamID:         getEnv("APNS_TEAM_ID", ""),
		APNSTopic:          getEnv("APNS_TOPIC", ""),
		APNSProduction:     getEnvAsBool("APNS_PRODUCTION", false),
	}
}

func loadSMSConfig() *SMSConfig {
	return &SMSConfig{
		Enabled:          getEnvAsBool("SMS_ENABLED", false),
		Provider:         getEnv("SMS_PROVIDER", "twilio"),
		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
	}
}

func loadStreamConfig() *StreamConfig {
	return &StreamConfig{
		Enabled: getEnvAsBool("KAFKA_ENABLED", false),
		Brokers: getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
		Topic:   getEnv("KAFKA_TOPIC", "ride-lifecycle-events"),
	}
}

func loadWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{
		ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
		WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 1024),
		WriteWait:       getEnvAsDuration("WS_WRITE_WAIT", 10*time.Second),
		PongWait:        getEnvAsDuration("WS_PONG_WAIT", 60*time.Second),
		MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 512)),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
