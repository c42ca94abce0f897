package db

import (
	"coin_exchange/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus"

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
)

// Models lists every table owned by the service, in creation order
func Models() []any {
	return []any{
		&domain.User{},
		&domain.LedgerEntry{},
		&domain.Subscription{},
		&domain.Video{},
		&domain.VideoView{},
		&domain.Payment{},
		&domain.Notification{},
	}
}

// AutoMigrate creates or updates the schema on an open connection
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...) // Tables, missing foreign keys, constraints, columns and indexes
}

// Open connects to MySQL with the given Data Source Name
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}

// DSN builds the MySQL Data Source Name from its parts
func DSN(user, password, host, port, name string) string {
	return user + ":" + password + "@tcp(" + host + ":" + port + ")/" + name + "?parseTime=true"
}

// Migrate performs automatic migration for the database schema
func Migrate(dsn string) {
	db, err := Open(dsn) // Open a connection to the database
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err) // Log fatal error if connection fails
	}
	if err := AutoMigrate(db); err != nil {
		logrus.Fatalf("migration failed: %v", err) // Log fatal error if migration fails
	}
	logrus.Info("Migration completed.") // Log successful migration
}
