package testutil

import (
	"os"
	"testing"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qs3c/devhance_server/internal/database"
)

// MySQLDSNEnv 设置后才会运行依赖真实 MySQL 的测试
const MySQLDSNEnv = "TEST_DATABASE_DSN"

func open(t *testing.T, dialector gorm.Dialector) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

// SetupTestDB 内存 SQLite，每次调用都是一个全新的库
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db := open(t, sqlite.Open(":memory:"))
	// 内存库每个连接独立，并发测试必须共用同一连接
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get underlying DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db
}

// SetupMySQLTestDB 连接 TEST_DATABASE_DSN 指向的库并清空数据，未设置时跳过
func SetupMySQLTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(MySQLDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", MySQLDSNEnv)
	}
	db := open(t, mysql.Open(dsn))
	Reset(t, db)
	return db
}

// Reset 按依赖的逆序清空所有表
func Reset(t *testing.T, db *gorm.DB) {
	t.Helper()

	models := database.Models()
	for i := len(models) - 1; i >= 0; i-- {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(models[i]).Error; err != nil {
			t.Fatalf("reset %T: %v", models[i], err)
		}
	}
}

func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()

	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("get underlying DB: %v", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		t.Logf("close test database: %v", err)
	}
}
