package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
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
	MySQL     MySQLConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Provider  ProviderConfig
	R2        R2Config
	Pipeline  PipelineConfig
	Costs     CostConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type MySQLConfig struct {
	DSN string
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
	GeneratePerHour int
	EditPerHour     int
}

type ProviderConfig struct {
	APIKey  string
	BaseURL string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type PipelineConfig struct {
	PollIntervalSec int
	JobTimeoutSec   int
}

// CostConfig holds per-operation flat rates in USD. Submission is billed at
// submit time; stage estimates feed the impact analyzer's previews.
type CostConfig struct {
	KeyframeUSD   float64
	VideoUSD      float64
	AudioUSD      float64
	BrollUSD      float64
	EditUSD       float64
	TextUSD       float64
	AssembleUSD   float64
	StageEstimate map[string]float64
}

func Load() (*Config, error) {
	readSecret("MYSQL_DSN")
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("PROVIDER_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("mysql.dsn", "MYSQL_DSN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("provider.api_key", "PROVIDER_API_KEY")
	_ = viper.BindEnv("provider.base_url", "PROVIDER_BASE_URL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("pipeline.poll_interval_sec", "PIPELINE_POLL_INTERVAL_SEC")
	_ = viper.BindEnv("pipeline.job_timeout_sec", "PIPELINE_JOB_TIMEOUT_SEC")

	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("mysql.dsn", "reelforge:reelforge@tcp(localhost:3306)/reelforge?charset=utf8mb4&parseTime=True&loc=Local")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.generate_per_hour", 60)
	viper.SetDefault("ratelimit.edit_per_hour", 120)
	viper.SetDefault("provider.base_url", "https://gateway.reelforge.dev")
	viper.SetDefault("pipeline.poll_interval_sec", 5)
	viper.SetDefault("pipeline.job_timeout_sec", 900)

	// Flat-rate operation costs, USD
	viper.SetDefault("costs.keyframe_usd", 0.35)
	viper.SetDefault("costs.video_usd", 1.80)
	viper.SetDefault("costs.audio_usd", 0.25)
	viper.SetDefault("costs.broll_usd", 0.90)
	viper.SetDefault("costs.edit_usd", 0.04)
	viper.SetDefault("costs.text_usd", 0.02)
	viper.SetDefault("costs.assemble_usd", 0.10)
	viper.SetDefault("costs.stage_estimate", map[string]float64{
		"scripting":        0.02,
		"casting":          2.80, // 4 scenes x start+end keyframes
		"directing":        7.20,
		"voiceover":        1.00,
		"broll_generation": 3.60,
	})

	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		MySQL: MySQLConfig{
			DSN: viper.GetString("mysql.dsn"),
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
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
			EditPerHour:     viper.GetInt("ratelimit.edit_per_hour"),
		},
		Provider: ProviderConfig{
			APIKey:  viper.GetString("provider.api_key"),
			BaseURL: viper.GetString("provider.base_url"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Pipeline: PipelineConfig{
			PollIntervalSec: viper.GetInt("pipeline.poll_interval_sec"),
			JobTimeoutSec:   viper.GetInt("pipeline.job_timeout_sec"),
		},
		Costs: CostConfig{
			KeyframeUSD:   viper.GetFloat64("costs.keyframe_usd"),
			VideoUSD:      viper.GetFloat64("costs.video_usd"),
			AudioUSD:      viper.GetFloat64("costs.audio_usd"),
			BrollUSD:      viper.GetFloat64("costs.broll_usd"),
			EditUSD:       viper.GetFloat64("costs.edit_usd"),
			TextUSD:       viper.GetFloat64("costs.text_usd"),
			AssembleUSD:   viper.GetFloat64("costs.assemble_usd"),
			StageEstimate: readStageEstimates(),
		},
	}
	return cfg, nil
}

func readStageEstimates() map[string]float64 {
	raw := viper.GetStringMap("costs.stage_estimate")
	out := make(map[string]float64, len(raw))
	for k := range raw {
		out[k] = viper.GetFloat64("costs.stage_estimate." + k)
	}
	return out
}
