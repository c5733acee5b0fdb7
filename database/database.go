package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"expensetracker/config"
	"expensetracker/models"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init 初始化数据库连接并赋值给全局 DB
func Init(cfg *config.Config) error {
	db, err := Open(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		return err
	}

	if err := Migrate(db); err != nil {
		return err
	}
	if err := Seed(db); err != nil {
		return err
	}

	DB = db
	zap.L().Info("数据库初始化成功", zap.String("driver", cfg.Database.Driver))
	return nil
}

// Open 按驱动类型建立连接并设置连接池
func Open(cfg *config.DatabaseConfig, mode string) (*gorm.DB, error) {
	logLevel := logger.Warn
	if mode == "debug" {
		logLevel = logger.Info
	}
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "mysql":
		// 构建 MySQL DSN 连接字符串
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
			cfg.Username,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.DBName,
			cfg.Charset,
		)
		db, err = gorm.Open(mysql.Open(dsn), gormCfg)
	case "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("创建数据库目录失败: %w", err)
			}
		}
		db, err = gorm.Open(sqlite.Open(sqliteDSN(cfg.Path)), gormCfg)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// SQLite 同一时间只允许一个写连接
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}

	return db, nil
}

// sqliteDSN 在路径后追加连接参数，兼容 file:xxx?mode=memory 形式
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_foreign_keys=on"
}

// Migrate 自动迁移数据库表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.ExpenseCategory{},
		&models.Blob{},
		&models.ExpenseReport{},
		&models.Expense{},
		&models.ManagementRelationship{},
	)
}

// Seed 初始化默认消费类别（仅当表为空时）
func Seed(db *gorm.DB) error {
	var catCount int64
	if err := db.Model(&models.ExpenseCategory{}).Count(&catCount).Error; err != nil {
		return err
	}
	if catCount > 0 {
		return nil
	}
	cats := models.DefaultExpenseCategories()
	return db.Create(&cats).Error
}

// GetDB 获取数据库连接
func GetDB() *gorm.DB {
	return DB
}
