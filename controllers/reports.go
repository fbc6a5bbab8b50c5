package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"

	"yondaime/models"
	"yondaime/services"
)

type ReportsController struct {
	DB      *gorm.DB
	Reports *services.ReportService
}

// Balance reports the derived month balance for one branch. The month
// defaults to the current one in the bot's timezone.
func (r *ReportsController) Balance(c *gin.Context) {
	branch := c.Query("branch")
	if _, ok := services.BranchNames[branch]; !ok {
		RespondError(c, "unknown branch", 400)
		return
	}

	monthKey := c.Query("month")
	if monthKey == "" {
		monthKey = r.Reports.MonthKey(time.Now())
	} else if _, err := time.Parse("2006-01", monthKey); err != nil {
		RespondError(c, "month must look like 2026-08", 400)
		return
	}

	balance, err := r.Reports.ComputeBalance(branch, monthKey)
	if err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	RespondSuccess(c, gin.H{
		"branch":  branch,
		"month":   monthKey,
		"balance": balance,
		"goal":    r.Reports.Goal,
	})
}

// Entries lists the raw ledger rows behind a balance.
func (r *ReportsController) Entries(c *gin.Context) {
	branch := c.Query("branch")
	if _, ok := services.BranchNames[branch]; !ok {
		RespondError(c, "unknown branch", 400)
		return
	}
	monthKey := c.Query("month")
	if monthKey == "" {
		monthKey = r.Reports.MonthKey(time.Now())
	}

	var entries []models.LedgerEntry
	err := r.DB.Where("branch = ? AND month_key = ?", branch, monthKey).
		Order("id asc").
		Find(&entries).Error
	if err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	RespondSuccess(c, entries)
}

// Withdraw appends a correction entry to the ledger.
func (r *ReportsController) Withdraw(c *gin.Context) {
	var body struct {
		Branch string `json:"branch"`
		Amount string `json:"amount"`
		UserID string `json:"user_id"`
	}
	if err := c.BindJSON(&body); err != nil {
		RespondError(c, "invalid body", 400)
		return
	}
	if _, ok := services.BranchNames[body.Branch]; !ok {
		RespondError(c, "unknown branch", 400)
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		RespondError(c, "amount must be a positive number", 400)
		return
	}

	summary, err := r.Reports.Withdraw(body.UserID, body.Branch, amount)
	if err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	RespondSuccess(c, gin.H{
		"branch":  summary.Branch,
		"month":   summary.MonthKey,
		"balance": summary.Accumulated,
	})
}
