package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Email    EmailConfig    `mapstructure:"email"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Expense  ExpenseConfig  `mapstructure:"expense"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port    string `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
	BaseURL string `mapstructure:"base_url"`
}

// DatabaseConfig 数据库配置
// Driver 为 mysql 时使用 Host/Port 等连接参数，为 sqlite 时使用 Path
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Charset  string `mapstructure:"charset"`
	Path     string `mapstructure:"path"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string        `mapstructure:"secret"`
	ExpireHours int           `mapstructure:"expire_hours"`
	ExpireTime  time.Duration `mapstructure:"-"`
}

// EmailConfig 邮件配置
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// StorageConfig 票据文件存储配置
type StorageConfig struct {
	BlobDir     string `mapstructure:"blob_dir"`
	MaxUploadMB int    `mapstructure:"max_upload_mb"`
}

// ExpenseConfig 报销业务配置（税率、财务邮箱等），运行期可通过 Settings 重新加载
type ExpenseConfig struct {
	VATRate         float64 `mapstructure:"vat_rate" json:"vat_rate"`
	FinanceEmail    string  `mapstructure:"finance_email" json:"finance_email"`
	DefaultCurrency string  `mapstructure:"default_currency" json:"default_currency"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

var (
	// GlobalConfig 全局配置实例
	GlobalConfig *Config
)

// LoadConfig 加载配置
// 优先级: 环境变量 > 外部配置文件 > 嵌入的默认配置
// configPath: 可选的外部配置文件路径
func LoadConfig(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	// 保存到全局变量
	GlobalConfig = cfg

	return cfg, nil
}

// newViper 构建合并了内置配置、外部配置文件和环境变量的 viper 实例
func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 首先加载嵌入的默认配置
	if err := v.ReadConfig(bytes.NewReader(DefaultConfigYAML)); err != nil {
		return nil, fmt.Errorf("读取内置配置失败: %w", err)
	}

	// 2. 尝试加载外部配置文件（可选，用于覆盖默认配置）
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.MergeInConfig(); err != nil {
			zap.L().Warn("无法读取指定配置文件", zap.String("path", configPath), zap.Error(err))
		}
	} else {
		externalViper := viper.New()
		externalViper.SetConfigName("config")
		externalViper.SetConfigType("yaml")
		externalViper.AddConfigPath(".")
		externalViper.AddConfigPath("./config")
		externalViper.AddConfigPath("/etc/expense-tracker")
		externalViper.AddConfigPath("$HOME/.expense-tracker")

		if err := externalViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(externalViper.AllSettings()); err != nil {
				zap.L().Warn("合并外部配置失败", zap.Error(err))
			} else {
				// 记录外部文件路径，供 WatchSettings 监听
				v.SetConfigFile(externalViper.ConfigFileUsed())
			}
		}
	}

	// 3. 支持环境变量覆盖，如 EXPENSE_EXPENSE_VAT_RATE
	v.SetEnvPrefix("EXPENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// decode 解析配置并补齐默认值
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if cfg.JWT.ExpireHours <= 0 {
		cfg.JWT.ExpireHours = 24
	}
	cfg.JWT.ExpireTime = time.Duration(cfg.JWT.ExpireHours) * time.Hour

	if cfg.Storage.MaxUploadMB <= 0 {
		cfg.Storage.MaxUploadMB = 10
	}
	if cfg.Expense.DefaultCurrency == "" {
		cfg.Expense.DefaultCurrency = "EUR"
	}
	cfg.Expense.DefaultCurrency = strings.ToUpper(cfg.Expense.DefaultCurrency)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("database.driver 仅支持 mysql 或 sqlite，当前: %q", c.Database.Driver)
	}
	if c.Expense.VATRate < 0 || c.Expense.VATRate >= 1 {
		return fmt.Errorf("expense.vat_rate 必须在 [0, 1) 之间，当前: %v", c.Expense.VATRate)
	}
	return nil
}

// WatchSettings 监听外部配置文件变化，重新加载报销业务配置到 settings
// 仅 expense 段支持热更新，其他配置修改需要重启
func WatchSettings(configPath string, settings *Settings) error {
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	// 没有外部配置文件时无需监听
	if v.ConfigFileUsed() == "" {
		return nil
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err != nil {
		return nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		reloaded, err := newViper(configPath)
		if err != nil {
			zap.L().Error("重新加载配置失败", zap.String("file", e.Name), zap.Error(err))
			return
		}
		cfg, err := decode(reloaded)
		if err != nil {
			zap.L().Error("重新解析配置失败", zap.String("file", e.Name), zap.Error(err))
			return
		}
		settings.Update(cfg.Expense)
		zap.L().Info("报销配置已重新加载",
			zap.String("file", e.Name),
			zap.Float64("vat_rate", cfg.Expense.VATRate))
	})
	v.WatchConfig()
	return nil
}

// PrintConfig 打印当前配置（隐藏敏感信息）
func PrintConfig() {
	if GlobalConfig == nil {
		return
	}
	log := zap.L()
	log.Info("当前配置",
		zap.String("port", GlobalConfig.Server.Port),
		zap.String("mode", GlobalConfig.Server.Mode),
		zap.String("db_driver", GlobalConfig.Database.Driver),
		zap.String("db", databaseDisplay(&GlobalConfig.Database)),
		zap.Bool("email_enabled", GlobalConfig.Email.Enabled),
		zap.String("blob_dir", GlobalConfig.Storage.BlobDir),
		zap.Float64("vat_rate", GlobalConfig.Expense.VATRate),
		zap.String("finance_email", GlobalConfig.Expense.FinanceEmail),
	)
}

func databaseDisplay(d *DatabaseConfig) string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("%s@%s:%s/%s", d.Username, d.Host, d.Port, d.DBName)
}
