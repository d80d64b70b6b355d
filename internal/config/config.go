// internal/config/config.go

// Package config 負責載入、補預設值與驗證服務設定（YAML）。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigFile 指定設定檔路徑的環境變數。
	EnvConfigFile = "MEMO_CONFIG_FILE"

	defaultConfigFilePath  = "config.yaml"
	defaultAddr            = ":8080"
	defaultIdentityHeader  = "X-Caller-ID"
	defaultShutdownTimeout = 10 * time.Second
	defaultNamespace       = "memo"
	defaultTreasury        = "treasury"
	defaultLogLevel        = "info"

	reservedNamespace = "ledger"
)

// Config 為整個服務的設定。
type Config struct {
	Log struct {
		Level string `yaml:"level,omitempty"` // debug, info, warn, error
	} `yaml:"log"`

	Server struct {
		Addr            string `yaml:"addr,omitempty"`
		IdentityHeader  string `yaml:"identity_header,omitempty"`  // 由前置閘道設定的可信任身分標頭
		ShutdownTimeout string `yaml:"shutdown_timeout,omitempty"` // time.ParseDuration 格式
	} `yaml:"server"`

	Storage struct {
		Path      string `yaml:"path,omitempty"` // 空字串 → 記憶體後端
		Namespace string `yaml:"namespace,omitempty"`
	} `yaml:"storage"`

	Ledger struct {
		Treasury string            `yaml:"treasury,omitempty"`
		Accounts map[string]string `yaml:"accounts,omitempty"` // 帳戶 → 初始餘額（十進位字串）
	} `yaml:"ledger"`
}

// Default 回傳只含預設值的設定。
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load 依序嘗試：參數 path → $MEMO_CONFIG_FILE → ./config.yaml。
// 前兩者明確指定時檔案必須存在；./config.yaml 不存在則使用預設值。
func Load(path string) (*Config, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigFile))
	}
	if path != "" {
		return loadAndValidate(path)
	}

	cfg, err := loadAndValidate(defaultConfigFilePath)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return Default(), nil
}

func loadAndValidate(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse 解析 YAML 內容、補上預設值並驗證。
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultAddr
	}
	if cfg.Server.IdentityHeader == "" {
		cfg.Server.IdentityHeader = defaultIdentityHeader
	}
	if cfg.Server.ShutdownTimeout == "" {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout.String()
	}
	if cfg.Storage.Namespace == "" {
		cfg.Storage.Namespace = defaultNamespace
	}
	if cfg.Ledger.Treasury == "" {
		cfg.Ledger.Treasury = defaultTreasury
	}
}

// Validate 檢查設定值是否可用。
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := c.ShutdownTimeout(); err != nil {
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}
	if c.Storage.Namespace == reservedNamespace {
		return fmt.Errorf("storage.namespace: %q is reserved", reservedNamespace)
	}
	if strings.Contains(c.Storage.Namespace, ":") {
		return fmt.Errorf("storage.namespace: must not contain ':'")
	}
	if _, err := c.InitialBalances(); err != nil {
		return fmt.Errorf("ledger.accounts: %w", err)
	}
	return nil
}

// LogLevel 回傳解析後的 slog 等級。
func (c *Config) LogLevel() slog.Level {
	level, err := ParseLogLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ShutdownTimeout 回傳解析後的關機逾時。
func (c *Config) ShutdownTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 0, err
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("must be > 0")
	}
	return timeout, nil
}

// InitialBalances 解析帳本初始帳戶；金庫帳戶未列出時以 0 開立。
func (c *Config) InitialBalances() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(c.Ledger.Accounts)+1)
	for id, raw := range c.Ledger.Accounts {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("empty account id")
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", id, err)
		}
		if amount.IsNegative() {
			return nil, fmt.Errorf("account %s: negative balance %s", id, amount)
		}
		out[id] = amount
	}
	if _, ok := out[c.Ledger.Treasury]; !ok {
		out[c.Ledger.Treasury] = decimal.Zero
	}
	return out, nil
}

// ParseLogLevel 將字串轉為 slog.Level。
func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
