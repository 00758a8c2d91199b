package database

import (
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB 初始化数据库连接并自动迁移
// dsn: 数据库连接字符串
// models: 需要自动建表/迁移的结构体指针
func InitDB(dsn string, models ...interface{}) *gorm.DB {
	// 只打印慢 SQL 和错误，全量 SQL 噪音太大
	dbLogger := logger.Default.LogMode(logger.Warn)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: dbLogger,
	})
	if err != nil {
		log.Fatalf("数据库连接失败 (Database Connection Failed): %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("获取底层 SQL DB 失败: %v", err)
	}

	// 连接池参数
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("数据库连接成功 (Database Connected Successfully)")

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			log.Fatalf("自动建表出错: %v", err)
		}
	}

	return db
}
