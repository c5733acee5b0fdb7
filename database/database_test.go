package database

import (
	"path/filepath"
	"testing"

	"expensetracker/config"
	"expensetracker/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "data/app.db?_busy_timeout=5000&_foreign_keys=on", sqliteDSN("data/app.db"))
	assert.Equal(t, "file:x?mode=memory&_busy_timeout=5000&_foreign_keys=on", sqliteDSN("file:x?mode=memory"))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"}, "release")
	assert.Error(t, err)
}

func TestInit_SQLiteMigratesAndSeeds(t *testing.T) {
	oldDB := DB
	defer func() { DB = oldDB }()

	cfg := &config.Config{
		Server:   config.ServerConfig{Mode: "release"},
		Database: config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "db", "test.db")},
	}
	require.NoError(t, Init(cfg))
	require.NotNil(t, GetDB())

	var count int64
	require.NoError(t, DB.Model(&models.ExpenseCategory{}).Count(&count).Error)
	assert.Equal(t, int64(len(models.GetCategories())), count)

	// 重复执行不会重复插入默认类别
	require.NoError(t, Seed(DB))
	require.NoError(t, DB.Model(&models.ExpenseCategory{}).Count(&count).Error)
	assert.Equal(t, int64(len(models.GetCategories())), count)

	assert.True(t, DB.Migrator().HasTable(&models.ExpenseReport{}))
	assert.True(t, DB.Migrator().HasTable(&models.ManagementRelationship{}))
	assert.True(t, DB.Migrator().HasTable(&models.Blob{}))

	sqlDB, err := DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}
