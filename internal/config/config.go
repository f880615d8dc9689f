package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultAccounts 固定的目标账号集合，可在配置文件中覆盖
var DefaultAccounts = []string{"ttcnotices", "TTChelps"}

type Config struct {
	AppPort  string `mapstructure:"app_port"`
	CronSpec string `mapstructure:"cron_spec"`
	// 配置后读接口启用 Basic Auth（/health 除外）
	BasicAuthUser string `mapstructure:"basic_auth_user"`
	BasicAuthPass string `mapstructure:"basic_auth_pass"`

	Fetch      FetchConfig      `mapstructure:"fetch"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Store      StoreConfig      `mapstructure:"store"`
	Log        LogConfig        `mapstructure:"log"`
}

// FetchConfig 主检索接口与降级抓取的参数
type FetchConfig struct {
	BearerToken   string   `mapstructure:"bearer_token"`
	SearchBaseURL string   `mapstructure:"search_base_url"`
	Accounts      []string `mapstructure:"accounts"`
	Limit         int      `mapstructure:"limit"`
	TimeoutSecs   int      `mapstructure:"timeout_secs"`

	ScrapeBaseURL   string `mapstructure:"scrape_base_url"`
	FallbackAccount string `mapstructure:"fallback_account"`
	// 降级模式默认保留转发，与旧脚本行为一致；部署方可按需开启过滤
	FallbackExcludeReshares bool `mapstructure:"fallback_exclude_reshares"`
}

// ClassifierConfig provider 为 http（托管推理接口）或 onnx（本地模型）
type ClassifierConfig struct {
	Provider   string  `mapstructure:"provider"`
	BaseURL    string  `mapstructure:"base_url"`
	Model      string  `mapstructure:"model"`
	Token      string  `mapstructure:"token"`
	RatePerSec float64 `mapstructure:"rate_per_sec"`

	ModelPath string   `mapstructure:"model_path"`
	VocabPath string   `mapstructure:"vocab_path"`
	LibPath   string   `mapstructure:"lib_path"`
	Labels    []string `mapstructure:"labels"`
	MaxSeqLen int      `mapstructure:"max_seq_len"`
	// 清洗后为空的文本（只有链接、表情等）不送模型，直接记为该类别
	EmptyLabel string `mapstructure:"empty_label"`
}

// StoreConfig driver 为 mongo / postgres / sqlite；配置了 RedisAddr 时在外层加去重缓存
type StoreConfig struct {
	Driver          string `mapstructure:"driver"`
	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection"`
	PostgresDSN     string `mapstructure:"postgres_dsn"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	RedisAddr       string `mapstructure:"redis_addr"`
	RedisKey        string `mapstructure:"redis_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load 读取配置：默认值 < config.yaml < 环境变量。path 为空时在当前目录查找 config.yaml
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 兼容旧脚本与既有部署使用的环境变量名
	for key, envs := range map[string][]string{
		"fetch.bearer_token": {"BEARER_TOKEN", "FETCH_BEARER_TOKEN"},
		"store.mongo_uri":    {"MONGO_URI", "STORE_MONGO_URI"},
		"store.postgres_dsn": {"POSTGRES_DSN", "STORE_POSTGRES_DSN"},
		"store.redis_addr":   {"REDIS_ADDR", "STORE_REDIS_ADDR"},
		"classifier.token":   {"HF_TOKEN", "CLASSIFIER_TOKEN"},
		"basic_auth_user":    {"APP_BASIC_USER"},
		"basic_auth_pass":    {"APP_BASIC_PASS"},
	} {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if len(cfg.Fetch.Accounts) == 0 {
		cfg.Fetch.Accounts = append([]string(nil), DefaultAccounts...)
	}
	if cfg.Fetch.FallbackAccount == "" {
		cfg.Fetch.FallbackAccount = cfg.Fetch.Accounts[0]
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_port", "9000")
	v.SetDefault("cron_spec", "*/15 * * * *")
	v.SetDefault("basic_auth_user", "")
	v.SetDefault("basic_auth_pass", "")

	v.SetDefault("fetch.bearer_token", "")
	v.SetDefault("fetch.search_base_url", "https://api.twitter.com")
	v.SetDefault("fetch.accounts", DefaultAccounts)
	v.SetDefault("fetch.limit", 10)
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.scrape_base_url", "https://nitter.net")
	v.SetDefault("fetch.fallback_account", "")
	v.SetDefault("fetch.fallback_exclude_reshares", false)

	v.SetDefault("classifier.provider", "http")
	v.SetDefault("classifier.base_url", "https://api-inference.huggingface.co")
	v.SetDefault("classifier.model", "distilbert-base-uncased")
	v.SetDefault("classifier.token", "")
	v.SetDefault("classifier.rate_per_sec", 2.0)
	v.SetDefault("classifier.model_path", "models/model.onnx")
	v.SetDefault("classifier.vocab_path", "models/vocab.txt")
	v.SetDefault("classifier.lib_path", "models/libonnxruntime.so")
	v.SetDefault("classifier.labels", []string{"LABEL_0", "LABEL_1"})
	v.SetDefault("classifier.max_seq_len", 128)
	v.SetDefault("classifier.empty_label", "UNCLASSIFIED")

	v.SetDefault("store.driver", "mongo")
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017/")
	v.SetDefault("store.mongo_database", "transit_alerts")
	v.SetDefault("store.mongo_collection", "tweets")
	v.SetDefault("store.postgres_dsn", "host=localhost user=transit password=transit dbname=transit_alerts port=5432 sslmode=disable TimeZone=UTC")
	v.SetDefault("store.sqlite_path", "transit_alerts.db")
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.redis_key", "transit_alerts:seen")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// InitLogger 初始化全局 zap logger
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
