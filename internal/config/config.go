// 包 config：服务配置（默认值 → YAML 文件 → 环境变量覆盖），统一各入口的参数来源
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile：未设置 CONFIG_FILE 时尝试读取的路径；文件缺失不视为错误
const DefaultFile = "config/places.yaml"

type Config struct {
	Addr           string          `yaml:"addr"`
	APIBase        string          `yaml:"api_base"`
	AdminToken     string          `yaml:"admin_token"`
	// TrustedProxies：可信反向代理网段；为空时信任所有代理头
	TrustedProxies []string        `yaml:"trusted_proxies"`
	Store          StoreConfig     `yaml:"store"`
	Postgres       PostgresConfig  `yaml:"postgres"`
	SQLite         SQLiteConfig    `yaml:"sqlite"`
	Redis          RedisConfig     `yaml:"redis"`
	Search         SearchConfig    `yaml:"search"`
	GeoIP          GeoIPConfig     `yaml:"geoip"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Log            LogConfig       `yaml:"log"`
	TLS            TLSConfig       `yaml:"tls"`
}

// StoreConfig：文档存储后端选择（postgres / sqlite / redis / memory）
type StoreConfig struct {
	Driver string `yaml:"driver"`
}

type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	DB           string `yaml:"db"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig：Enabled 控制近邻响应缓存；driver=redis 时无论 Enabled 均作为存储使用
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      string `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type SearchConfig struct {
	DefaultRadiusM float64       `yaml:"default_radius_m"`
	MaxRadiusM     float64       `yaml:"max_radius_m"`
	DefaultLimit   int           `yaml:"default_limit"`
	MaxLimit       int           `yaml:"max_limit"`
	LatestDefault  int           `yaml:"latest_default"`
	Timeout        time.Duration `yaml:"timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

type GeoIPConfig struct {
	Path string `yaml:"path"`
	Lang string `yaml:"lang"`
}

type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`
	QPS     int  `yaml:"qps"`
}

// TLSConfig：证书缺失时按 CN 生成自签证书，仅用于内网与开发环境
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertPath string `yaml:"cert_path"`
	KeyPath  string `yaml:"key_path"`
	CN       string `yaml:"cn"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// 文档注释：默认配置
// 背景：近邻默认半径 2000m、上限 100 条；最新列表默认 50 条，与地图客户端的默认视图一致。
func Default() *Config {
	return &Config{
		Addr:    ":8080",
		APIBase: "/api",
		Store:   StoreConfig{Driver: "postgres"},
		Postgres: PostgresConfig{
			Host:         "localhost",
			Port:         "5432",
			User:         "postgres",
			DB:           "places",
			SSLMode:      "disable",
			MaxOpenConns: 50,
			MaxIdleConns: 25,
		},
		SQLite: SQLiteConfig{Path: "data/places.db"},
		Redis: RedisConfig{
			Host:      "127.0.0.1",
			Port:      "6379",
			KeyPrefix: "places",
		},
		Search: SearchConfig{
			DefaultRadiusM: 2000,
			MaxRadiusM:     50000,
			DefaultLimit:   100,
			MaxLimit:       500,
			LatestDefault:  50,
			Timeout:        5 * time.Second,
			CacheTTL:       30 * time.Second,
		},
		RateLimit: RateLimitConfig{QPS: 200},
		Log:       LogConfig{Level: "info", Format: "text"},
		TLS: TLSConfig{
			CertPath: "data/certs/server.crt",
			KeyPath:  "data/certs/server.key",
			CN:       "places-api.local",
		},
	}
}

// 文档注释：加载配置
// 参数：path 为 YAML 文件路径；为空时读取 CONFIG_FILE，再回退 DefaultFile。
// 约束：显式指定的文件不存在时报错；默认路径缺失则仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		if v := os.Getenv("CONFIG_FILE"); v != "" {
			path = v
			explicit = true
		} else {
			path = DefaultFile
		}
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// 文档注释：环境变量覆盖
// 背景：沿用既有部署的变量名（PG_*/REDIS_*/RATE_LIMIT_*/ADDR/API_BASE），容器化部署无需改动编排文件。
// 约束：数值解析失败时忽略该项，保留前一层的值。
func applyEnv(c *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}
	millis := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = time.Duration(n) * time.Millisecond
			}
		}
	}

	str("ADDR", &c.Addr)
	str("API_BASE", &c.APIBase)
	str("ADMIN_TOKEN", &c.AdminToken)
	str("STORE_DRIVER", &c.Store.Driver)

	str("PG_HOST", &c.Postgres.Host)
	str("PG_PORT", &c.Postgres.Port)
	str("PG_USER", &c.Postgres.User)
	str("PG_PASSWORD", &c.Postgres.Password)
	str("PG_DB", &c.Postgres.DB)
	str("PG_SSLMODE", &c.Postgres.SSLMode)
	num("PG_MAX_OPEN_CONNS", &c.Postgres.MaxOpenConns)
	num("PG_MAX_IDLE_CONNS", &c.Postgres.MaxIdleConns)

	str("SQLITE_PATH", &c.SQLite.Path)

	flag("REDIS_ENABLED", &c.Redis.Enabled)
	str("REDIS_HOST", &c.Redis.Host)
	str("REDIS_PORT", &c.Redis.Port)
	str("REDIS_PASS", &c.Redis.Password)
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Redis.DB = n
		}
	}
	str("REDIS_KEY_PREFIX", &c.Redis.KeyPrefix)

	millis("SEARCH_TIMEOUT_MS", &c.Search.Timeout)
	if v := os.Getenv("SEARCH_CACHE_TTL_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Search.CacheTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("SEARCH_MAX_RADIUS_M"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Search.MaxRadiusM = f
		}
	}

	str("GEOIP_PATH", &c.GeoIP.Path)
	str("GEOIP_LANG", &c.GeoIP.Lang)
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		c.TrustedProxies = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.TrustedProxies = append(c.TrustedProxies, p)
			}
		}
	}

	flag("RATE_LIMIT_ENABLED", &c.RateLimit.Enabled)
	num("RATE_LIMIT_QPS", &c.RateLimit.QPS)

	flag("TLS_ENABLE", &c.TLS.Enabled)
	str("TLS_CERT_PATH", &c.TLS.CertPath)
	str("TLS_KEY_PATH", &c.TLS.KeyPath)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
}

// Validate：拒绝无法启动的组合
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Search.DefaultRadiusM <= 0 || c.Search.MaxRadiusM <= 0 || c.Search.DefaultRadiusM > c.Search.MaxRadiusM {
		return fmt.Errorf("config: bad search radius defaults %v/%v", c.Search.DefaultRadiusM, c.Search.MaxRadiusM)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("config: bad search limits %d/%d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.Timeout <= 0 {
		return errors.New("config: search timeout must be positive")
	}
	if !strings.HasPrefix(c.APIBase, "/") {
		return fmt.Errorf("config: api_base %q must start with /", c.APIBase)
	}
	return nil
}

// 文档注释：拼接 PostgreSQL DSN
// 约束：密码为空时省略冒号段；sslmode 缺省 disable。
func (p PostgresConfig) DSN() string {
	dsn := "postgres://" + p.User
	if p.Password != "" {
		dsn += ":" + p.Password
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	dsn += "@" + p.Host + ":" + p.Port + "/" + p.DB + "?sslmode=" + ssl
	return dsn
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }
