package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	JWT    JWTConfig
	Tasks  TasksConfig
	OpenAI OpenAIConfig
	Store  StoreConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type TasksConfig struct {
	Queue     string
	WorkerURL string // e.g. https://SERVICE.a.run.app/v1/tasks/runJob
	Token     string // shared secret sent as X-Tasks-Token
	MaxRetry  int
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type StoreConfig struct {
	Retention time.Duration // 0 keeps job records forever
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("tasks.queue", "jobs")
	viper.SetDefault("tasks.worker_url", "http://localhost:8080/v1/tasks/runJob")
	viper.SetDefault("tasks.token", "")
	viper.SetDefault("tasks.max_retry", 5)
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.model", "gpt-5-mini")
	viper.SetDefault("store.retention", time.Duration(0))

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		Tasks: TasksConfig{
			Queue:     viper.GetString("tasks.queue"),
			WorkerURL: viper.GetString("tasks.worker_url"),
			Token:     viper.GetString("tasks.token"),
			MaxRetry:  viper.GetInt("tasks.max_retry"),
		},
		OpenAI: OpenAIConfig{
			BaseURL: viper.GetString("openai.base_url"),
			APIKey:  viper.GetString("openai.api_key"),
			Model:   viper.GetString("openai.model"),
		},
		Store: StoreConfig{
			Retention: viper.GetDuration("store.retention"),
		},
	}

	return cfg, nil
}
