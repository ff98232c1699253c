package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret fills FOO from the file named by FOO_FILE when FOO is unset.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Groq      GroqConfig
	R2        R2Config
	Zitadel   ZitadelConfig
	Identity  IdentityConfig
	Gateway   GatewayConfig
	Analysis  AnalysisConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	ApiDomain   string
	CORSOrigins string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	AnalyzePerHour int
	AssetsPerHour  int
	SessionsPerMin int
	ExportsPerHour int
}

type GroqConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	SpeechModel       string
	RequestsPerSecond float64
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

// IdentityConfig points at an Appwrite-compatible account API.
type IdentityConfig struct {
	Endpoint  string
	ProjectID string
	APIKey    string
}

type GatewayConfig struct {
	Enabled bool
}

type AnalysisConfig struct {
	IncludeWeaknessAnalysis bool
	EstimatedDuration       int // seconds
	StepDelay               time.Duration
	Concurrency             int
}

type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

func Load() (*Config, error) {
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("GROQ_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")
	readSecret("APPWRITE_API_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("server.cors_origins", "CORS_ORIGINS")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = viper.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = viper.BindEnv("groq.model", "GROQ_MODEL")
	_ = viper.BindEnv("groq.speech_model", "GROQ_SPEECH_MODEL")
	_ = viper.BindEnv("groq.requests_per_second", "GROQ_REQUESTS_PER_SECOND")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("identity.endpoint", "APPWRITE_ENDPOINT")
	_ = viper.BindEnv("identity.project_id", "APPWRITE_PROJECT_ID")
	_ = viper.BindEnv("identity.api_key", "APPWRITE_API_KEY")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("analysis.include_weakness_analysis", "ANALYSIS_INCLUDE_WEAKNESS")
	_ = viper.BindEnv("analysis.estimated_duration", "ANALYSIS_ESTIMATED_DURATION")
	_ = viper.BindEnv("analysis.step_delay", "ANALYSIS_STEP_DELAY")
	_ = viper.BindEnv("analysis.concurrency", "ANALYSIS_CONCURRENCY")
	_ = viper.BindEnv("telemetry.service_name", "OTEL_SERVICE_NAME")
	_ = viper.BindEnv("telemetry.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	viper.SetDefault("server.port", "7000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.cors_origins", "*")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.analyze_per_hour", 10)
	viper.SetDefault("ratelimit.assets_per_hour", 30)
	viper.SetDefault("ratelimit.sessions_per_min", 60)
	viper.SetDefault("ratelimit.exports_per_hour", 20)

	viper.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("groq.model", "llama-3.3-70b-versatile")
	viper.SetDefault("groq.speech_model", "playai-tts")
	viper.SetDefault("groq.requests_per_second", 2)

	viper.SetDefault("gateway.enabled", false)

	viper.SetDefault("analysis.include_weakness_analysis", false)
	viper.SetDefault("analysis.estimated_duration", 120)
	viper.SetDefault("analysis.step_delay", "0s")
	viper.SetDefault("analysis.concurrency", 5)

	viper.SetDefault("telemetry.service_name", "competeiq-api")

	// Config file is optional
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("server.port"),
			Env:         viper.GetString("server.env"),
			LogLevel:    viper.GetString("server.log_level"),
			ApiDomain:   viper.GetString("server.api_domain"),
			CORSOrigins: viper.GetString("server.cors_origins"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			AnalyzePerHour: viper.GetInt("ratelimit.analyze_per_hour"),
			AssetsPerHour:  viper.GetInt("ratelimit.assets_per_hour"),
			SessionsPerMin: viper.GetInt("ratelimit.sessions_per_min"),
			ExportsPerHour: viper.GetInt("ratelimit.exports_per_hour"),
		},
		Groq: GroqConfig{
			APIKey:            viper.GetString("groq.api_key"),
			BaseURL:           viper.GetString("groq.base_url"),
			Model:             viper.GetString("groq.model"),
			SpeechModel:       viper.GetString("groq.speech_model"),
			RequestsPerSecond: viper.GetFloat64("groq.requests_per_second"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Zitadel: ZitadelConfig{
			Domain:   viper.GetString("zitadel.domain"),
			ClientID: viper.GetString("zitadel.client_id"),
			Issuer:   viper.GetString("zitadel.issuer"),
		},
		Identity: IdentityConfig{
			Endpoint:  viper.GetString("identity.endpoint"),
			ProjectID: viper.GetString("identity.project_id"),
			APIKey:    viper.GetString("identity.api_key"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		Analysis: AnalysisConfig{
			IncludeWeaknessAnalysis: viper.GetBool("analysis.include_weakness_analysis"),
			EstimatedDuration:       viper.GetInt("analysis.estimated_duration"),
			StepDelay:               viper.GetDuration("analysis.step_delay"),
			Concurrency:             viper.GetInt("analysis.concurrency"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  viper.GetString("telemetry.service_name"),
			OTLPEndpoint: viper.GetString("telemetry.otlp_endpoint"),
		},
	}

	return cfg, nil
}
