package db

import (
	"log"
	"os"
	"path/filepath"

	"yondaime/config"
	"yondaime/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

var conf config.Configuration

func SetConfigurations(configuration config.Configuration) {
	conf = configuration
}

// Connect opens the database connection (sqlite3 by default) and runs
// automigrate. Set AUTOMIGRATE=0 to skip migrations on startup.
func Connect() (*gorm.DB, error) {
	database := conf.Database
	if database == "" {
		database = "sqlite3"
	}

	var (
		db  *gorm.DB
		err error
	)

	if database == "postgres" || database == "postgresql" {
		log.Println("Using postgresql connection...")
		path := "host=" + conf.DbHost + " port=" + conf.DbPort
		path += " user=" + conf.DbUser + " dbname=" + conf.DbName
		path += " password=" + conf.DbPass
		db, err = gorm.Open("postgres", path)
	} else {
		log.Println("Using sqlite3 connection...")
		dbPath := conf.DbPath
		if dbPath == "" {
			dbPath = "db/database.db"
		}
		os.MkdirAll(filepath.Dir(dbPath), 0o755)
		db, err = gorm.Open("sqlite3", dbPath)
	}

	if err != nil {
		log.Println("Got error when connect database, the error is: " + err.Error())
		return nil, err
	}

	db.LogMode(getenv("DB_LOG", "0") == "1")

	if getenv("AUTOMIGRATE", "1") == "1" {
		db.AutoMigrate(
			&models.Follower{},
			&models.Conversation{},
			&models.LedgerEntry{},
			&models.CalendarEvent{},
		)
	}

	return db, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
