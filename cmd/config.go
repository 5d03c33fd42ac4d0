package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/dszqbsm/booksource/booksource"
	"github.com/dszqbsm/booksource/fetch"
	"github.com/dszqbsm/booksource/limiter"
	"github.com/dszqbsm/booksource/log"
	"github.com/dszqbsm/booksource/proxy"
	"github.com/dszqbsm/booksource/rule"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// 命令行工具的全部配置，通过yaml文件加载，缺失项使用默认值
type Config struct {
	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile"` // 非空时日志同时写入该文件（带轮转）

	Site struct {
		URL       string `yaml:"url"`
		FindURL   string `yaml:"findURL"`
		UserAgent string `yaml:"userAgent"`
	} `yaml:"site"`

	Fetcher struct {
		Timeout int           `yaml:"timeout"` // 毫秒
		Proxy   []string      `yaml:"proxy"`
		Limits  []LimitConfig `yaml:"limits"`
	} `yaml:"fetcher"`

	// 书源规则，二选一：Rules为内联的JSON文本，RulesFile为yaml规则文件路径；
	// 都为空时使用内置默认规则
	Rules     string `yaml:"rules"`
	RulesFile string `yaml:"rulesFile"`
}

type LimitConfig struct {
	EventCount int `yaml:"eventCount"`
	EventDur   int `yaml:"eventDur"` // 秒
	Bucket     int `yaml:"bucket"`   // 桶大小
}

func defaultConfig() *Config {
	c := &Config{LogLevel: "INFO"}
	c.Site.URL = "http://3g.shugelou.org"
	c.Site.FindURL = "http://3g.shugelou.org/fenlei.html"
	c.Fetcher.Timeout = 10000
	return c
}

// 加载yaml配置文件，文件不存在时返回默认配置
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// 依据配置组装日志器、抓取器与解析器
func setup(cfg *Config) (*booksource.Parser, *zap.Logger, error) {
	logLevel, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("parse log level: %w", err)
	}
	plugin := log.NewStderrPlugin(logLevel)
	if cfg.LogFile != "" {
		filePlugin, _ := log.NewFilePlugin(cfg.LogFile, logLevel)
		plugin = zapcore.NewTee(plugin, filePlugin)
	}
	logger := log.NewLogger(plugin)
	zap.ReplaceGlobals(logger)

	// 规则解析失败时回退到内置默认规则，属宿主侧兜底，引擎本身假定规则合法
	var set *rule.Set
	if cfg.RulesFile != "" {
		set, err = rule.LoadFile(cfg.RulesFile)
	} else {
		set, err = rule.ParseJSON([]byte(cfg.Rules))
	}
	if err != nil {
		logger.Error("parse book source rules failed, fall back to default", zap.Error(err))
		set = rule.Default()
	}

	var p proxy.ProxyFunc
	if len(cfg.Fetcher.Proxy) > 0 {
		if p, err = proxy.RoundRobinProxySwitcher(cfg.Fetcher.Proxy...); err != nil {
			logger.Error("RoundRobinProxySwitcher failed", zap.Error(err))
		}
	}

	var limit limiter.RateLimiter
	if len(cfg.Fetcher.Limits) > 0 {
		var limits []limiter.RateLimiter
		for _, lcfg := range cfg.Fetcher.Limits {
			bucket := lcfg.Bucket
			if bucket <= 0 {
				bucket = 1
			}
			l := rate.NewLimiter(limiter.Per(lcfg.EventCount, time.Duration(lcfg.EventDur)*time.Second), bucket)
			limits = append(limits, l)
		}
		limit = limiter.Multi(limits...)
	}

	f := &fetch.BrowserFetch{
		Timeout:   time.Duration(cfg.Fetcher.Timeout) * time.Millisecond,
		Logger:    logger,
		Proxy:     p,
		UserAgent: cfg.Site.UserAgent,
		SiteURL:   cfg.Site.URL,
		Limit:     limit,
	}

	parser, err := booksource.New(set,
		booksource.WithSiteURL(cfg.Site.URL),
		booksource.WithFetcher(f),
		booksource.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create parser: %w", err)
	}
	return parser, logger, nil
}
