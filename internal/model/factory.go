package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"interior/internal/config"
	"interior/internal/entity"
	"interior/internal/model/sql"

	"github.com/sirupsen/logrus"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const (
	DBTypeMySQL    = "mysql"
	DBTypeSQLite   = "sqlite"
	DBTypePostgres = "postgres"
)

// 账本相关表，新增实体需要同步加到这里
var schemaModels = []interface{}{
	&entity.DbUser{},
	&entity.DbCreditTransaction{},
	&entity.DbGeneration{},
	&entity.DbPaymentEvent{},
}

// InitRepository 按 DBType 打开数据库、迁移表结构并返回仓库。
func InitRepository(cfg *config.Config) (Repository, error) {
	dbType := strings.ToLower(strings.TrimSpace(cfg.DBType))
	if dbType == "" {
		return nil, fmt.Errorf("database type is empty")
	}
	dialector, err := dialectorFor(dbType, cfg)
	if err != nil {
		return nil, err
	}

	db, err := openDB(dialector, dbType == DBTypeSQLite)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dbType, err)
	}
	if err := db.AutoMigrate(schemaModels...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	logrus.WithField("db_type", dbType).Info("repository ready")
	return sql.NewGormRepository(db), nil
}

// OpenSQLiteMemory 打开内存 SQLite 仓库，供测试和本地试用
func OpenSQLiteMemory() (Repository, error) {
	db, err := openDB(sqlite.Open("file::memory:"), true)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(schemaModels...); err != nil {
		return nil, err
	}
	return sql.NewGormRepository(db), nil
}

func dialectorFor(dbType string, cfg *config.Config) (gorm.Dialector, error) {
	switch dbType {
	case DBTypeMySQL:
		dsn := cfg.DSNURL
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
				cfg.DBUser, cfg.DBPassword, cfg.DBAddr, cfg.DBPort, cfg.DBName)
		}
		return mysql.Open(dsn), nil
	case DBTypePostgres:
		dsn := cfg.DSNURL
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
				cfg.DBAddr, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
		}
		return postgres.Open(dsn), nil
	case DBTypeSQLite:
		filePath := cfg.DBPath
		if filePath == "" {
			filePath = "datas/interior.db"
		}
		// SQLite 只会创建文件，不会创建目录
		if dir := filepath.Dir(filePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory %q: %w", dir, err)
			}
		}
		return sqlite.Open(filePath), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// openDB 打开连接池。singleWriter 用于 SQLite：只有一个连接，账本事务因此串行执行。
func openDB(dialector gorm.Dialector, singleWriter bool) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(logrus.StandardLogger(), logger.Config{
			SlowThreshold:             5 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NamingStrategy:                           schema.NamingStrategy{SingularTable: true},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if singleWriter {
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}
