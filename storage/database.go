package storage

import (
	"fmt"
	"log"
	"time"

	"github.com/oneclickdz/ocpay-reconciler/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// DB holds the database connection
	DB *gorm.DB
	// Err holds database connection error
	Err error
)

// Dialector returns the gorm dialector for the configured driver
func Dialector(conf *config.DatabaseConfiguration) (gorm.Dialector, error) {
	dsn := conf.ConnectionString()
	switch conf.Driver {
	case "postgres", "":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", conf.Driver)
	}
}

// DBConnection create database connection
func DBConnection(conf *config.DatabaseConfiguration) error {
	dialector, err := Dialector(conf)
	if err != nil {
		Err = err
		return err
	}

	log.Println("Connecting to the database with driver: ", conf.Driver)
	var db *gorm.DB
	for i := 0; i < 3; i++ { // Retry mechanism
		db, err = gorm.Open(dialector, &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err == nil {
			break
		}
		time.Sleep(2 * time.Second) // Wait before retrying
	}

	if err != nil {
		Err = err
		log.Println("Database connection error")
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		Err = err
		return err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(2 * time.Minute)

	if config.ServerConfig().Environment == "local" || conf.Driver == "sqlite" {
		log.Println("Running migration")
		if err := Migrate(db); err != nil {
			Err = err
			return err
		}
	}

	DB = db

	log.Println("DB connection done")

	return nil
}

// Migrate creates or updates the order tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&OrderModel{}, &OrderMetaModel{}, &OrderNoteModel{})
}

// GetClient connection
func GetClient() *gorm.DB {
	return DB
}

// GetError connection error
func GetError() error {
	return Err
}

// Close closes the underlying connection pool
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
