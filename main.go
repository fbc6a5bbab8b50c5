package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"yondaime/cache"
	"yondaime/config"
	"yondaime/controllers"
	"yondaime/db"
	"yondaime/queue"
	"yondaime/router"
	"yondaime/services"
	"yondaime/storage"
	"yondaime/tools"
	"yondaime/workers"
)

func main() {
	cfg := config.Load()
	if _, ok := cfg.Validate(); !ok {
		log.Println("config: starting with missing settings, some features are off")
	}
	loc := cfg.Location()

	db.SetConfigurations(cfg)
	database, err := db.Connect()
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer database.Close()

	store := cache.NewMemory()
	eventQueue := queue.New(store, int(cfg.Cache.QueueTTL.Seconds()))

	media, err := storage.NewDirMediaStore(cfg.MediaDir)
	if err != nil {
		log.Fatalf("media store: %v", err)
	}

	line := tools.NewLineClient(cfg.Line.AccessToken, cfg.Retry.Attempts, cfg.Retry.Delay)

	var intents services.IntentDetector
	if cfg.Dialogflow.Enabled {
		dialogflow, err := tools.NewDialogflowClient(
			cfg.Dialogflow.ProjectID,
			cfg.Dialogflow.LanguageCode,
			cfg.Dialogflow.ServiceAccount,
			cfg.Retry.Attempts,
			cfg.Retry.Delay,
		)
		if err != nil {
			log.Printf("dialogflow: disabled (%v)", err)
		} else {
			intents = dialogflow
		}
	}
	gemini := tools.NewGeminiClient(cfg.Gemini.APIKey, cfg.Gemini.Fallback, cfg.Retry.Attempts, cfg.Retry.Delay)

	followers := services.NewFollowerService(database, store,
		int(cfg.Cache.FollowerTTL.Seconds()), int(cfg.Cache.StatsTTL.Seconds()), loc)
	conversations := services.NewConversationService(database)
	reports := services.NewReportService(database, store, media, line,
		int(cfg.Cache.StateTTL.Seconds()), cfg.ReportGoal, loc)

	var provider services.CalendarProvider
	if cfg.Calendar.CalendarID != "" && cfg.Calendar.AccessToken != "" {
		provider = tools.NewCalendarClient(cfg.Calendar.CalendarID, cfg.Calendar.AccessToken)
	}
	calendar := services.NewCalendarService(database, provider, line, cfg.Calendar.GroupID, cfg.Calendar.TestMode, loc)

	responder := &services.Responder{
		Reports:        reports,
		Line:           line,
		Intents:        intents,
		Gemini:         gemini,
		IgnoredIntents: cfg.Dialogflow.IgnoredIntents,
		LoadingSeconds: cfg.Line.LoadingSeconds,
	}
	processor := &workers.Processor{
		Queue:         eventQueue,
		Followers:     followers,
		Conversations: conversations,
		Line:          line,
		Analytics:     cfg.Features.AnalyticsEnabled,
	}
	scheduler := workers.NewScheduler(cfg.AsyncDelay, processor.Run)

	go runMorningReminders(calendar, loc)

	r := gin.New()
	r.Use(db.SetDBtoContext(database))
	router.Initialize(r, router.Controllers{
		Webhook: &controllers.WebhookController{
			ChannelSecret: cfg.Line.ChannelSecret,
			Queue:         eventQueue,
			Scheduler:     scheduler,
			Responder:     responder,
		},
		Followers: &controllers.FollowersController{Followers: followers},
		Reports:   &controllers.ReportsController{DB: database, Reports: reports},
		Calendar:  &controllers.CalendarController{Calendar: calendar},
	})

	log.Printf("listening on :%s", cfg.ApiPort)
	log.Fatal(r.Run(":" + cfg.ApiPort))
}

// runMorningReminders fires the daily calendar sweep at 08:00 local time.
func runMorningReminders(calendar *services.CalendarService, loc *time.Location) {
	for {
		now := time.Now().In(loc)
		next := time.Date(now.Year(), now.Month(), now.Day(), 8, 0, 0, 0, loc)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		time.Sleep(time.Until(next))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		sent, err := calendar.MorningReminders(ctx)
		cancel()
		if err != nil {
			log.Printf("reminders: sweep failed: %v", err)
			continue
		}
		log.Printf("reminders: sent %d", sent)
	}
}
