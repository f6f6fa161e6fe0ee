package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Loyalty LoyaltyConfig `mapstructure:"loyalty"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Notification string `mapstructure:"notification"`
}

// LoyaltyConfig 业务参数
// 兑换率与返积分上限的权威值在 platform_loyalty_config 表里，
// 这里只是数据库不可用时的兜底和各类业务阈值
type LoyaltyConfig struct {
	WelcomeBonusPoints      int64 `mapstructure:"welcome_bonus_points"`      // 注册欢迎积分
	SubscriptionDefaultDays int   `mapstructure:"subscription_default_days"` // 订阅默认时长（天）
	VoucherDefaultTTLHours  int   `mapstructure:"voucher_default_ttl_hours"` // 优惠券默认有效期（小时），0 表示永久
	MaxRetryCount           int   `mapstructure:"max_retry_count"`           // 通知发送最大重试次数
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	return config
}
