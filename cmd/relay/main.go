package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"

	"yondaime/relay"
)

func main() {
	port := getenv("PORT", "8081")
	secret := os.Getenv("LINE_CHANNEL_SECRET")
	if secret == "" {
		log.Fatal("LINE_CHANNEL_SECRET is required")
	}

	var targets []string
	for _, t := range strings.Split(os.Getenv("RELAY_TARGETS"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		log.Fatal("RELAY_TARGETS is required (comma-separated webhook URLs)")
	}

	var db *gorm.DB
	if path := os.Getenv("RELAY_DB_PATH"); path != "" {
		var err error
		db, err = gorm.Open("sqlite3", path)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		db.AutoMigrate(&relay.StoredMessage{})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/webhook", relay.NewHandler(secret, targets, db))

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("relay listening on :%s, %d targets", port, len(targets))
	log.Fatal(srv.ListenAndServe())
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
