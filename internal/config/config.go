package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	BucketAvatars string
	UseSSL        bool
	Region        string
	PublicBaseURL string
}

type SecurityConfig struct {
	JWTAccessSecret  string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	EmailTokenTTL    time.Duration
	ResetTokenTTL    time.Duration
	BcryptCost       int
	LockoutThreshold int
	LockoutDuration  time.Duration
}

type MailConfig struct {
	FromAddress string
	FromName    string
	BaseURL     string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Mail             MailConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("COSMIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The secrets have no defaults, so AutomaticEnv alone never surfaces
	// them to Unmarshal; they must be bound explicitly.
	v.MustBindEnv("security.jwtaccesssecret")
	v.MustBindEnv("security.jwtrefreshsecret")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Security.JWTAccessSecret == "" {
		return nil, fmt.Errorf("security.jwtaccesssecret is required")
	}
	if cfg.Security.JWTRefreshSecret == "" {
		return nil, fmt.Errorf("security.jwtrefreshsecret is required")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucketavatars", "cosmic-avatars")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.accesstokenttl", "15m")
	v.SetDefault("security.refreshtokenttl", "168h") // 7 days
	v.SetDefault("security.emailtokenttl", "24h")
	v.SetDefault("security.resettokenttl", "1h")
	v.SetDefault("security.bcryptcost", 12)
	v.SetDefault("security.lockoutthreshold", 5)
	v.SetDefault("security.lockoutduration", "30m")

	v.SetDefault("mail.fromaddress", "no-reply@cosmic-platform.io")
	v.SetDefault("mail.fromname", "Cosmic Platform")
	v.SetDefault("mail.baseurl", "http://localhost:3000")
}
