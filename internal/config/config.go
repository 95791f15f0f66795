package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// DateLayout 活动窗口日期格式
const DateLayout = "2006-01-02"

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Reward   RewardConfig   `mapstructure:"reward"`
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

type BusinessConfig struct {
	MaxRetryCount            int `mapstructure:"max_retry_count"`
	ReconcileIntervalSeconds int `mapstructure:"reconcile_interval_seconds"`
	LockTimeoutSeconds       int `mapstructure:"lock_timeout_seconds"`
}

// RewardConfig 积分奖励规则配置
//
// 所有列表为空时使用 reward 包内的默认规则
type RewardConfig struct {
	CampaignStart       string                    `mapstructure:"campaign_start"`
	CampaignEnd         string                    `mapstructure:"campaign_end"`
	CampaignFormTypeIDs []int64                   `mapstructure:"campaign_form_type_ids"`
	CampaignCheckpoints []CheckpointConfig        `mapstructure:"campaign_checkpoints"`
	MysteryBoxTiers     []MysteryBoxTierConfig    `mapstructure:"mystery_box_tiers"`
	ReferralMilestones  []ReferralMilestoneConfig `mapstructure:"referral_milestones"`
	ReferralPolicy      string                    `mapstructure:"referral_policy"` // exact | crossing
	FortuneWheel        FortuneWheelConfig        `mapstructure:"fortune_wheel"`
	RandomSeed          int64                     `mapstructure:"random_seed"`
}

type CheckpointConfig struct {
	Ordinal int   `mapstructure:"ordinal"`
	Points  int64 `mapstructure:"points"`
}

type PrizeConfig struct {
	ProductID int64  `mapstructure:"product_id"`
	Points    int64  `mapstructure:"points"`
	Name      string `mapstructure:"name"`
	Weight    int    `mapstructure:"weight"`
}

type MysteryBoxTierConfig struct {
	Threshold      int           `mapstructure:"threshold"`
	FallbackPoints int64         `mapstructure:"fallback_points"`
	Prizes         []PrizeConfig `mapstructure:"prizes"`
}

type ReferralMilestoneConfig struct {
	Threshold int   `mapstructure:"threshold"`
	Points    int64 `mapstructure:"points"`
}

type FortuneWheelConfig struct {
	MaxSpins         int           `mapstructure:"max_spins"`
	MinApprovedForms int           `mapstructure:"min_approved_forms"`
	FallbackPoints   int64         `mapstructure:"fallback_points"`
	Prizes           []PrizeConfig `mapstructure:"prizes"`
}

// CampaignWindow 解析活动窗口，未配置时返回零值
func (r RewardConfig) CampaignWindow() (start, end time.Time, err error) {
	if r.CampaignStart != "" {
		if start, err = time.ParseInLocation(DateLayout, r.CampaignStart, time.Local); err != nil {
			return
		}
	}
	if r.CampaignEnd != "" {
		if end, err = time.ParseInLocation(DateLayout, r.CampaignEnd, time.Local); err != nil {
			return
		}
	}
	return
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("business.max_retry_count", 5)
	viper.SetDefault("business.reconcile_interval_seconds", 300)
	viper.SetDefault("business.lock_timeout_seconds", 30)
	viper.SetDefault("reward.referral_policy", "exact")
	viper.SetDefault("reward.fortune_wheel.max_spins", 2)
	viper.SetDefault("reward.fortune_wheel.min_approved_forms", 0)

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	if _, _, err := config.Reward.CampaignWindow(); err != nil {
		log.Fatalf("活动时间窗口配置错误: %v", err)
	}

	GlobalConfig = config
	return config
}
