package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration holds everything the bot server needs. All values come from
// the environment; Load applies defaults so a dev setup only has to export
// the credentials.
type Configuration struct {
	ApiPort string

	Database string // "sqlite3" or "postgres"
	DbHost   string
	DbPort   string
	DbUser   string
	DbName   string
	DbPass   string
	DbPath   string // sqlite3 file

	Line struct {
		ChannelSecret  string
		AccessToken    string
		LoadingSeconds int
	}

	Dialogflow struct {
		Enabled        bool
		ProjectID      string
		LanguageCode   string
		ServiceAccount string // raw service-account JSON
		IgnoredIntents []string
	}

	Gemini struct {
		APIKey   string
		Fallback string
	}

	Calendar struct {
		CalendarID  string
		GroupID     string
		AccessToken string
		TestMode    bool
	}

	Features struct {
		AnalyticsEnabled bool
	}

	Cache struct {
		FollowerTTL time.Duration
		StatsTTL    time.Duration
		StateTTL    time.Duration
		QueueTTL    time.Duration
	}

	Retry struct {
		Attempts int
		Delay    time.Duration
	}

	AsyncDelay time.Duration
	MediaDir   string
	ReportGoal float64
	Timezone   string
}

// Load reads the environment and fills in defaults.
func Load() Configuration {
	var c Configuration

	c.ApiPort = getenv("PORT", "8080")

	c.Database = getenv("DATABASE", "sqlite3")
	c.DbHost = os.Getenv("DB_HOST")
	c.DbPort = getenv("DB_PORT", "5432")
	c.DbUser = os.Getenv("DB_USER")
	c.DbName = os.Getenv("DB_NAME")
	c.DbPass = os.Getenv("DB_PASS")
	c.DbPath = getenv("DB_PATH", "db/database.db")

	c.Line.ChannelSecret = os.Getenv("LINE_CHANNEL_SECRET")
	c.Line.AccessToken = os.Getenv("LINE_CHANNEL_ACCESS_TOKEN")
	c.Line.LoadingSeconds = getenvInt("LINE_LOADING_SECONDS", 5)

	c.Dialogflow.Enabled = getenvBool("DIALOGFLOW_ENABLED", true)
	c.Dialogflow.ProjectID = os.Getenv("DIALOGFLOW_PROJECT_ID")
	c.Dialogflow.LanguageCode = getenv("DIALOGFLOW_LANGUAGE_CODE", "th")
	c.Dialogflow.ServiceAccount = os.Getenv("DIALOGFLOW_SERVICE_ACCOUNT")
	c.Dialogflow.IgnoredIntents = splitList(getenv("DIALOGFLOW_IGNORED_INTENTS", "Default Fallback Intent"))

	c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	c.Gemini.Fallback = getenv("AI_FALLBACK_MESSAGE",
		"ขออภัยค่ะ ตอนนี้บอทไม่เข้าใจคำถามของคุณ แต่เราจะส่งเรื่องให้แอดมินช่วยดูแลต่อทันทีค่ะ")

	c.Calendar.CalendarID = os.Getenv("CALENDAR_ID")
	c.Calendar.GroupID = os.Getenv("CALENDAR_LINE_GROUP_ID")
	c.Calendar.AccessToken = getenv("CALENDAR_LINE_ACCESS_TOKEN", os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"))
	c.Calendar.TestMode = getenvBool("CALENDAR_TEST_MODE", false)

	c.Features.AnalyticsEnabled = getenvBool("ANALYTICS_ENABLED", true)

	c.Cache.FollowerTTL = getenvDuration("FOLLOWER_CACHE_TTL", time.Hour)
	c.Cache.StatsTTL = getenvDuration("STATS_CACHE_TTL", 5*time.Minute)
	c.Cache.StateTTL = getenvDuration("REPORT_STATE_TTL", 300*time.Second)
	c.Cache.QueueTTL = getenvDuration("EVENT_QUEUE_TTL", time.Hour)

	c.Retry.Attempts = getenvInt("RETRY_ATTEMPTS", 3)
	c.Retry.Delay = getenvDuration("RETRY_DELAY", time.Second)

	c.AsyncDelay = getenvDuration("ASYNC_DELAY", 100*time.Millisecond)
	c.MediaDir = getenv("MEDIA_DIR", "media")
	c.ReportGoal = getenvFloat("OIL_REPORT_GOAL", 10000)
	c.Timezone = getenv("TIMEZONE", "Asia/Bangkok")

	return c
}

// Check is one line of the startup validation report.
type Check struct {
	Name string
	OK   bool
}

// Validate reports which required settings are present. The server keeps
// running with failed checks; features that need a missing value abort at
// call time instead.
func (c Configuration) Validate() ([]Check, bool) {
	checks := []Check{
		{"LINE channel secret", c.Line.ChannelSecret != ""},
		{"LINE access token", c.Line.AccessToken != ""},
		{"Dialogflow project", !c.Dialogflow.Enabled || c.Dialogflow.ProjectID != ""},
		{"Dialogflow service account", !c.Dialogflow.Enabled || c.Dialogflow.ServiceAccount != ""},
		{"Calendar ID", c.Calendar.CalendarID != ""},
		{"Calendar group ID", c.Calendar.GroupID != ""},
	}

	allValid := true
	for _, ck := range checks {
		if ck.OK {
			log.Printf("config: OK %s", ck.Name)
		} else {
			log.Printf("config: MISSING %s", ck.Name)
			allValid = false
		}
	}
	return checks, allValid
}

// Location resolves the configured timezone, falling back to UTC.
func (c Configuration) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("config: invalid timezone %q, using UTC", c.Timezone)
		return time.UTC
	}
	return loc
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	n, err := strconv.Atoi(getenv(k, ""))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getenvFloat(k string, def float64) float64 {
	f, err := strconv.ParseFloat(getenv(k, ""), 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func getenvBool(k string, def bool) bool {
	v := getenv(k, "")
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func getenvDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getenv(k, ""))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
