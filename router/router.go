package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yondaime/controllers"
	"yondaime/middleware"
)

// Controllers bundles the handlers the router wires up.
type Controllers struct {
	Webhook   *controllers.WebhookController
	Followers *controllers.FollowersController
	Reports   *controllers.ReportsController
	Calendar  *controllers.CalendarController
}

// Initialize wires all routes and middlewares. The webhook endpoint stays
// outside the admin group: no CORS preflight, no request logging.
func Initialize(r *gin.Engine, cc Controllers) {
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/webhook", cc.Webhook.Handle)

	api := r.Group("/api")
	api.Use(middleware.CORSMiddleware())

	// Followers
	api.GET("/followers", Logger(), cc.Followers.List)
	api.GET("/followers/stats", Logger(), cc.Followers.Stats)
	api.GET("/followers/top", Logger(), cc.Followers.Top)
	api.GET("/followers/export", Logger(), cc.Followers.Export)
	api.GET("/followers/:id", Logger(), cc.Followers.Get)
	api.POST("/followers/:id/tags", Logger(), cc.Followers.AddTag)
	api.DELETE("/followers/:id/tags/:tag", Logger(), cc.Followers.RemoveTag)

	// Ledger
	api.GET("/reports/balance", Logger(), cc.Reports.Balance)
	api.GET("/reports/entries", Logger(), cc.Reports.Entries)
	api.POST("/reports/withdraw", Logger(), cc.Reports.Withdraw)

	// Calendar workflow
	api.GET("/calendar/events", Logger(), cc.Calendar.Pending)
	api.POST("/calendar/events", Logger(), cc.Calendar.Submit)
	api.POST("/calendar/events/:id/confirm", Logger(), cc.Calendar.Confirm)
	api.POST("/calendar/events/:id/cancel", Logger(), cc.Calendar.Cancel)
	api.PUT("/calendar/events/:id", Logger(), cc.Calendar.Update)
	api.POST("/calendar/reminders", Logger(), cc.Calendar.Reminders)
}
