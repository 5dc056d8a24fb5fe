package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type YamlAPNsConfig struct {
	TeamID     string `yaml:"team_id"`
	KeyID      string `yaml:"key_id"`
	P8Key      string `yaml:"p8_key"`
	BundleID   string `yaml:"bundle_id"`
	Production bool   `yaml:"production"`
}

type YamlBroadcastConfig struct {
	AdminSecret string `yaml:"admin_secret"`
	BatchSize   int    `yaml:"batch_size"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string              `yaml:"project_id"`
	ListenAddr             string              `yaml:"listen_addr"`
	TopicID                string              `yaml:"topic_id"`
	SubscriptionID         string              `yaml:"subscription_id"`
	SubscriptionDLQTopicID string              `yaml:"subscription_dlq_topic_id"`
	CorsConfig             YamlCorsConfig      `yaml:"cors"`
	RedisConfig            YamlRedisConfig     `yaml:"redis"`
	APNsConfig             YamlAPNsConfig      `yaml:"apns"`
	BroadcastConfig        YamlBroadcastConfig `yaml:"broadcast"`
	DispatchTimeout        string              `yaml:"dispatch_timeout"`
	NumPipelineWorkers     int                 `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		TopicID:        baseCfg.TopicID,
		SubscriptionID: baseCfg.SubscriptionID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		APNs: APNsConfig{
			TeamID:     baseCfg.APNsConfig.TeamID,
			KeyID:      baseCfg.APNsConfig.KeyID,
			P8Key:      baseCfg.APNsConfig.P8Key,
			BundleID:   baseCfg.APNsConfig.BundleID,
			Production: baseCfg.APNsConfig.Production,
		},
		Broadcast: BroadcastConfig{
			AdminSecret: baseCfg.BroadcastConfig.AdminSecret,
			BatchSize:   baseCfg.BroadcastConfig.BatchSize,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if baseCfg.DispatchTimeout != "" {
		d, err := time.ParseDuration(baseCfg.DispatchTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid dispatch_timeout %q: %w", baseCfg.DispatchTimeout, err)
		}
		cfg.DispatchTimeout = d
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}
