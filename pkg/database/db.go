// Package database 管理关系型数据库与 Redis 的全局连接。
package database

import (
	"convai-builder-go/pkg/log"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open 按驱动名称打开数据库连接，支持 mysql 与 postgres。
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql", "":
		dialector = mysql.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

// InitDB 初始化数据库连接并配置连接池
func InitDB(driver, dsn string) {
	var err error
	DB, err = Open(driver, dsn)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}

	sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
	sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
	sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间

	log.Infof("%s database connected successfully", driver)
}

// AutoMigrate 根据模型同步表结构。
func AutoMigrate(models ...interface{}) {
	if err := DB.AutoMigrate(models...); err != nil {
		log.Fatal("failed to migrate database", err)
	}
	log.Info("database schema migrated")
}
