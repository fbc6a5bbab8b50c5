package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"

	"yondaime/cache"
	"yondaime/models"
	"yondaime/storage"
	"yondaime/tools"
)

/************************************************
/**** MARK: REPORT FLOW STEPS ****/
/************************************************/
const REPORT_STEP_INIT = "INIT"
const REPORT_STEP_AWAITING_AMOUNT = "AWAITING_AMOUNT"
const REPORT_STEP_AWAITING_IMAGE = "AWAITING_IMAGE"
const REPORT_STEP_COMPLETE = "COMPLETE"

const REPORT_STATE_KEY_PREFIX = "report_state_"

// Branch codes and their display names.
var BranchNames = map[string]string{
	"EMQ": "EmQuartier",
	"ONB": "One Bangkok",
	"KSQ": "KingsQuare",
}

// ReportState is the per-user flow position, held in the cache and
// abandoned automatically when its TTL runs out.
type ReportState struct {
	Step   string `json:"step"`
	Branch string `json:"branch"`
	Amount string `json:"amount,omitempty"`
}

// ReportSummary is the answer shown after a completed submission.
type ReportSummary struct {
	Branch      string
	MonthKey    string
	Latest      decimal.Decimal
	Accumulated decimal.Decimal
	Goal        decimal.Decimal
}

// MediaFetcher downloads a message attachment by id.
type MediaFetcher interface {
	MediaContent(ctx context.Context, messageID string) ([]byte, error)
}

// ReportService runs the staff oil-report flow: pick a branch, type the
// amount, attach the proof photo. Each completed flow appends one ledger
// entry; balances are recomputed from the ledger on every read.
type ReportService struct {
	DB       *gorm.DB
	Cache    cache.Store
	Media    storage.MediaStore
	Fetcher  MediaFetcher
	StateTTL int
	Goal     decimal.Decimal
	Location *time.Location
}

func NewReportService(db *gorm.DB, store cache.Store, media storage.MediaStore, fetcher MediaFetcher, stateTTL int, goal float64, loc *time.Location) *ReportService {
	return &ReportService{
		DB:       db,
		Cache:    store,
		Media:    media,
		Fetcher:  fetcher,
		StateTTL: stateTTL,
		Goal:     decimal.NewFromFloat(goal),
		Location: loc,
	}
}

// MonthKey formats t as the ledger month bucket, in the bot's timezone.
func (s *ReportService) MonthKey(t time.Time) string {
	return t.In(s.Location).Format("2006-01")
}

// State returns the user's current flow position, or nil when no flow is
// running (never started, completed, or expired).
func (s *ReportService) State(userID string) (*ReportState, error) {
	raw, err := s.Cache.Get(REPORT_STATE_KEY_PREFIX + userID)
	if err == cache.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state ReportState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode report state: %w", err)
	}
	return &state, nil
}

func (s *ReportService) setState(userID string, state *ReportState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.Cache.Put(REPORT_STATE_KEY_PREFIX+userID, string(raw), s.StateTTL)
}

// ClearState abandons the user's flow.
func (s *ReportService) ClearState(userID string) error {
	return s.Cache.Remove(REPORT_STATE_KEY_PREFIX + userID)
}

// Start begins a flow for the branch. An unknown branch code is rejected;
// an already-running flow is restarted from scratch.
func (s *ReportService) Start(userID, branch string) ([]tools.LineMessage, error) {
	name, ok := BranchNames[branch]
	if !ok {
		return nil, fmt.Errorf("unknown branch %q", branch)
	}

	state := &ReportState{Step: REPORT_STEP_AWAITING_AMOUNT, Branch: branch}
	if err := s.setState(userID, state); err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf("เริ่มบันทึกยอดสาขา %s ค่ะ กรุณาพิมพ์จำนวนเงิน", name)
	return []tools.LineMessage{tools.TextMessage(prompt)}, nil
}

// HandleText advances a running flow with a typed message. The returned
// handled flag is false when no flow is active, so the caller falls through
// to intent handling instead.
func (s *ReportService) HandleText(userID, text string) (bool, []tools.LineMessage, error) {
	state, err := s.State(userID)
	if err != nil {
		return false, nil, err
	}
	if state == nil {
		return false, nil, nil
	}

	switch state.Step {
	case REPORT_STEP_AWAITING_AMOUNT:
		amount, err := parseAmount(text)
		if err != nil {
			msg := tools.TextMessage("กรุณาพิมพ์จำนวนเงินเป็นตัวเลขค่ะ เช่น 350 หรือ 1,250.50")
			return true, []tools.LineMessage{msg}, nil
		}
		state.Amount = amount.StringFixed(2)
		state.Step = REPORT_STEP_AWAITING_IMAGE
		if err := s.setState(userID, state); err != nil {
			return true, nil, err
		}
		msg := tools.TextMessage(fmt.Sprintf("รับยอด %s บาทค่ะ กรุณาส่งรูปถ่ายสลิปยืนยัน", state.Amount))
		return true, []tools.LineMessage{msg}, nil

	case REPORT_STEP_AWAITING_IMAGE:
		msg := tools.TextMessage("กรุณาส่งเป็นรูปภาพค่ะ")
		return true, []tools.LineMessage{msg}, nil

	default:
		// Stale step, drop the flow.
		s.ClearState(userID)
		return false, nil, nil
	}
}

// HandleImage completes a flow waiting for its proof photo: the image is
// downloaded and stored, the ledger entry appended, and the month summary
// returned. With no active flow the image is ignored (handled=false).
func (s *ReportService) HandleImage(ctx context.Context, userID, messageID string) (bool, []tools.LineMessage, error) {
	state, err := s.State(userID)
	if err != nil {
		return false, nil, err
	}
	if state == nil || state.Step != REPORT_STEP_AWAITING_IMAGE {
		return false, nil, nil
	}

	data, err := s.Fetcher.MediaContent(ctx, messageID)
	if err != nil {
		msg := tools.TextMessage("ดาวน์โหลดรูปไม่สำเร็จค่ะ กรุณาส่งใหม่อีกครั้ง")
		return true, []tools.LineMessage{msg}, nil
	}

	imageURL, err := s.Media.Save(messageID+".jpg", data)
	if err != nil {
		return true, nil, fmt.Errorf("store report image: %w", err)
	}

	amount, err := decimal.NewFromString(state.Amount)
	if err != nil {
		s.ClearState(userID)
		return true, nil, fmt.Errorf("corrupt amount in report state: %w", err)
	}

	summary, err := s.SaveReport(userID, state.Branch, amount, imageURL)
	if err != nil {
		return true, nil, err
	}
	if err := s.ClearState(userID); err != nil {
		return true, nil, err
	}
	return true, []tools.LineMessage{s.summaryMessage(summary)}, nil
}

// SaveReport appends a deposit to the ledger and recomputes the month
// balance for the branch.
func (s *ReportService) SaveReport(userID, branch string, amount decimal.Decimal, imageURL string) (*ReportSummary, error) {
	now := time.Now()
	monthKey := s.MonthKey(now)
	entry := models.LedgerEntry{
		Timestamp:   &now,
		Branch:      branch,
		StaffUserID: userID,
		MonthKey:    monthKey,
		Amount:      amount,
		ImageURL:    imageURL,
		Type:        models.LEDGER_TYPE_DEPOSIT,
	}
	if err := s.DB.Create(&entry).Error; err != nil {
		return nil, err
	}

	balance, err := s.ComputeBalance(branch, monthKey)
	if err != nil {
		return nil, err
	}
	return &ReportSummary{
		Branch:      branch,
		MonthKey:    monthKey,
		Latest:      amount,
		Accumulated: balance,
		Goal:        s.Goal,
	}, nil
}

// ComputeBalance derives the month balance for a branch from the ledger:
// the sum of deposits minus the sum of withdrawals. Nothing is cached, the
// ledger rows are the only source of truth.
func (s *ReportService) ComputeBalance(branch, monthKey string) (decimal.Decimal, error) {
	var entries []models.LedgerEntry
	err := s.DB.Where("branch = ? AND month_key = ?", branch, monthKey).Find(&entries).Error
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for _, e := range entries {
		if e.Type == models.LEDGER_TYPE_WITHDRAW {
			balance = balance.Sub(e.Amount)
		} else {
			balance = balance.Add(e.Amount)
		}
	}
	return balance, nil
}

// Withdraw appends a withdrawal entry, used when a submitted report has to
// be corrected.
func (s *ReportService) Withdraw(userID, branch string, amount decimal.Decimal) (*ReportSummary, error) {
	now := time.Now()
	monthKey := s.MonthKey(now)
	entry := models.LedgerEntry{
		Timestamp:   &now,
		Branch:      branch,
		StaffUserID: userID,
		MonthKey:    monthKey,
		Amount:      amount,
		Type:        models.LEDGER_TYPE_WITHDRAW,
	}
	if err := s.DB.Create(&entry).Error; err != nil {
		return nil, err
	}

	balance, err := s.ComputeBalance(branch, monthKey)
	if err != nil {
		return nil, err
	}
	return &ReportSummary{
		Branch:      branch,
		MonthKey:    monthKey,
		Latest:      amount.Neg(),
		Accumulated: balance,
		Goal:        s.Goal,
	}, nil
}

// PlaceholderValues renders the summary into the token map used by
// fulfillment messages.
func (s *ReportService) PlaceholderValues(userID, branch string) (map[string]string, error) {
	now := time.Now().In(s.Location)
	monthKey := s.MonthKey(now)
	balance, err := s.ComputeBalance(branch, monthKey)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		tools.PLACEHOLDER_BRANCH:  BranchNames[branch],
		tools.PLACEHOLDER_MONTH:   monthKey,
		tools.PLACEHOLDER_BALANCE: formatBaht(balance),
		tools.PLACEHOLDER_DATE:    now.Format("2006-01-02"),
		tools.PLACEHOLDER_USER_ID: userID,
	}, nil
}

// QuickReplyBranches builds quick reply items for switching branch, leaving
// out the branch currently selected.
func QuickReplyBranches(current string) json.RawMessage {
	type action struct {
		Type  string `json:"type"`
		Label string `json:"label"`
		Data  string `json:"data"`
	}
	type item struct {
		Type   string `json:"type"`
		Action action `json:"action"`
	}

	var items []item
	for _, code := range []string{"EMQ", "ONB", "KSQ"} {
		if code == current {
			continue
		}
		items = append(items, item{
			Type: "action",
			Action: action{
				Type:  "postback",
				Label: BranchNames[code],
				Data:  "branch=" + code,
			},
		})
	}

	raw, _ := json.Marshal(map[string]any{"items": items})
	return raw
}

// AttachQuickReply sets the quickReply block on a message, leaving the
// message untouched when it cannot be decoded.
func AttachQuickReply(message tools.LineMessage, quickReply json.RawMessage) tools.LineMessage {
	var tree map[string]any
	if err := json.Unmarshal(message, &tree); err != nil {
		return message
	}
	var qr any
	if err := json.Unmarshal(quickReply, &qr); err != nil {
		return message
	}
	tree["quickReply"] = qr

	out, err := json.Marshal(tree)
	if err != nil {
		return message
	}
	return out
}

func (s *ReportService) summaryMessage(sum *ReportSummary) tools.LineMessage {
	name := BranchNames[sum.Branch]
	bubble := map[string]any{
		"type":    "flex",
		"altText": fmt.Sprintf("บันทึกยอดสาขา %s เรียบร้อย", name),
		"contents": map[string]any{
			"type": "bubble",
			"body": map[string]any{
				"type":   "box",
				"layout": "vertical",
				"contents": []map[string]any{
					{"type": "text", "text": "บันทึกยอดเรียบร้อย", "weight": "bold", "size": "lg"},
					{"type": "text", "text": fmt.Sprintf("สาขา: %s", name)},
					{"type": "text", "text": fmt.Sprintf("เดือน: %s", sum.MonthKey)},
					{"type": "text", "text": fmt.Sprintf("ยอดล่าสุด: %s บาท", formatBaht(sum.Latest))},
					{"type": "text", "text": fmt.Sprintf("ยอดสะสม: %s / %s บาท", formatBaht(sum.Accumulated), formatBaht(sum.Goal))},
				},
			},
		},
	}
	raw, _ := json.Marshal(bubble)
	return raw
}

// parseAmount accepts plain and comma-grouped numbers ("350", "1,250.50").
func parseAmount(text string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

// formatBaht renders an amount with thousands separators and two decimals.
func formatBaht(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	neg := strings.HasPrefix(fixed, "-")
	if neg {
		fixed = fixed[1:]
	}
	parts := strings.SplitN(fixed, ".", 2)

	intPart := parts[0]
	var grouped []string
	for len(intPart) > 3 {
		grouped = append([]string{intPart[len(intPart)-3:]}, grouped...)
		intPart = intPart[:len(intPart)-3]
	}
	grouped = append([]string{intPart}, grouped...)

	out := strings.Join(grouped, ",") + "." + parts[1]
	if neg {
		out = "-" + out
	}
	return out
}
