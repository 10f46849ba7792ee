package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Consul   ConsulConfig   `json:"consul"`
	Jaeger   JaegerConfig   `json:"jaeger"`
	Auth     AuthConfig     `json:"auth"`
	Rental   RentalConfig   `json:"rental"`
	Upstream UpstreamConfig `json:"upstream"`
	Log      LogConfig      `json:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name     string `json:"name"`      // 服务名称
	Host     string `json:"host"`      // 服务地址
	HTTPPort int    `json:"http_port"` // HTTP端口
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `json:"driver"`   // 数据库驱动
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// RedisConfig Redis配置（生命周期事件发布）
type RedisConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Password     string `json:"password"`
	DB           int    `json:"db"`
	PoolSize     int    `json:"pool_size"`
	EventChannel string `json:"event_channel"` // 预订事件发布频道
}

// ConsulConfig Consul配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// AuthConfig 鉴权配置（HS256 JWT）
type AuthConfig struct {
	Enabled     bool     `json:"enabled"`
	JWTSecret   string   `json:"jwt_secret"`
	Issuer      string   `json:"issuer"`
	Audience    string   `json:"audience"`
	PublicPaths []string `json:"public_paths"` // 免鉴权路径（健康检查、支付回调等）
}

// RentalConfig 租赁引擎配置：整备缓冲、过期扫描、信誉分规则。
type RentalConfig struct {
	BufferDays           int            `json:"buffer_days"`            // 还车后的整备缓冲（天）
	PendingGraceMinutes  int            `json:"pending_grace_minutes"`  // 未支付预订的宽限期（分钟）
	SweepIntervalSeconds int            `json:"sweep_interval_seconds"` // 过期扫描周期（秒）
	CategoryMinScore     map[string]int `json:"category_min_score"`     // 车型类别 -> 最低信誉分
	Score                ScoreConfig    `json:"score"`
}

// ScoreConfig 还车评价对信誉分的加减规则。
type ScoreConfig struct {
	LateDeliveryPenalty  int `json:"late_delivery_penalty"`
	ChargedFeePenalty    int `json:"charged_fee_penalty"`
	AccidentPenalty      int `json:"accident_penalty"`
	DamageUnitPenalty    int `json:"damage_unit_penalty"`    // 每级损伤扣分
	DirtinessUnitPenalty int `json:"dirtiness_unit_penalty"` // 每级脏污扣分
	CleanReturnBonus     int `json:"clean_return_bonus"`     // 无任何负面项时的奖励分
}

// UpstreamConfig 下游依赖服务配置
type UpstreamConfig struct {
	Payment  UpstreamEndpoint `json:"payment"`
	Tracking UpstreamEndpoint `json:"tracking"`
	Identity UpstreamEndpoint `json:"identity"`
}

// UpstreamEndpoint 单个下游服务的地址、超时与熔断参数
type UpstreamEndpoint struct {
	BaseURL             string `json:"base_url"`
	TimeoutSeconds      int    `json:"timeout_seconds"`
	MaxFailures         int    `json:"max_failures"`
	ResetTimeoutSeconds int    `json:"reset_timeout_seconds"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		// 如果配置文件不存在，使用默认配置
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
		ApplyRentalDefaults(&globalConfig.Rental)
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// ApplyRentalDefaults 补齐引擎必需但配置里缺省的字段。
func ApplyRentalDefaults(rc *RentalConfig) {
	if rc.BufferDays <= 0 {
		rc.BufferDays = 1
	}
	if rc.PendingGraceMinutes <= 0 {
		rc.PendingGraceMinutes = 30
	}
	if rc.SweepIntervalSeconds <= 0 {
		rc.SweepIntervalSeconds = 60
	}
	if len(rc.CategoryMinScore) == 0 {
		rc.CategoryMinScore = defaultCategoryMinScore()
	}
	if rc.Score == (ScoreConfig{}) {
		rc.Score = defaultScoreConfig()
	}
}

func defaultCategoryMinScore() map[string]int {
	return map[string]int{
		"ECONOMY":  50,
		"STANDARD": 60,
		"PREMIUM":  75,
		"LUXURY":   90,
	}
}

func defaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		LateDeliveryPenalty:  8,
		ChargedFeePenalty:    5,
		AccidentPenalty:      15,
		DamageUnitPenalty:    3,
		DirtinessUnitPenalty: 2,
		CleanReturnBonus:     3,
	}
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:     "rental-service",
			Host:     "0.0.0.0",
			HTTPPort: 8080,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "carrentlink",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         6379,
			Password:     "",
			DB:           0,
			PoolSize:     10,
			EventChannel: "reservation-events",
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "http://localhost:14268/api/traces",
			Sampler:  1.0,
		},
		Auth: AuthConfig{
			Enabled:     false,
			Issuer:      "carrentlink",
			Audience:    "carrentlink",
			PublicPaths: []string{"/healthz", "/metrics", "/api/v1/payments/confirm"},
		},
		Rental: RentalConfig{
			BufferDays:           1,
			PendingGraceMinutes:  30,
			SweepIntervalSeconds: 60,
			CategoryMinScore:     defaultCategoryMinScore(),
			Score:                defaultScoreConfig(),
		},
		Upstream: UpstreamConfig{
			Payment:  UpstreamEndpoint{BaseURL: "http://localhost:9001", TimeoutSeconds: 5, MaxFailures: 5, ResetTimeoutSeconds: 30},
			Tracking: UpstreamEndpoint{BaseURL: "http://localhost:9002", TimeoutSeconds: 5, MaxFailures: 5, ResetTimeoutSeconds: 30},
			Identity: UpstreamEndpoint{BaseURL: "http://localhost:9003", TimeoutSeconds: 5, MaxFailures: 5, ResetTimeoutSeconds: 30},
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/app.log",
		},
	}
}
