package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Flutterwave FlutterwaveConfig `mapstructure:"flutterwave"`
	Business    BusinessConfig    `mapstructure:"business"`
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
	PaymentReconciled string `mapstructure:"payment_reconciled"`
	DividendPaid      string `mapstructure:"dividend_paid"`
}

// FlutterwaveConfig 支付渠道配置
// SecretHash 是 webhook 签名共享密钥，只有本系统和渠道知道
type FlutterwaveConfig struct {
	SecretHash string `mapstructure:"secret_hash"`
}

type BusinessConfig struct {
	RegistrationFee    int64   `mapstructure:"registration_fee"`     // 激活费，最小货币单位（UGX）
	ReferralBonusRate  float64 `mapstructure:"referral_bonus_rate"`  // 推荐奖励比例（0.1 = 10%）
	DividendBatchSize  int     `mapstructure:"dividend_batch_size"`  // 分红任务每批处理的持仓数
	MaxRetryCount      int     `mapstructure:"max_retry_count"`      // 出站消息最大重试次数
	StoreTimeoutSecond int     `mapstructure:"store_timeout_second"` // 数据库操作超时（秒）
}

var GlobalConfig *Config

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

	if config.Flutterwave.SecretHash == "" {
		log.Fatalf("flutterwave.secret_hash 不能为空，webhook 签名校验依赖该密钥")
	}

	GlobalConfig = config
	return config
}

// ReferralBonusAmount 推荐奖励金额
//
// 【关键点】奖励基数永远是平台配置的激活费，而不是 webhook 上报的金额：
// 渠道回调里的 amount 可以被构造（部分支付、伪造金额），
// 用配置常量计算可以杜绝奖励被放大
func (c *BusinessConfig) ReferralBonusAmount() int64 {
	return int64(float64(c.RegistrationFee) * c.ReferralBonusRate)
}
