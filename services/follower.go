package services

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/gorm"

	"yondaime/cache"
	"yondaime/models"
	"yondaime/tools"
)

/************************************************
/**** MARK: FOLLOWER CACHE KEYS ****/
/************************************************/
const FOLLOWER_KEY_PREFIX = "follower_"
const FOLLOWER_STATS_KEY = "follower_stats"
const ALL_FOLLOWERS_MAP_KEY = "all_followers_map"

// FollowerStats is the cached aggregate view of the follower base. The
// weekly fields use a rolling 7-day window.
type FollowerStats struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Blocked    int `json:"blocked"`
	NewWeek    int `json:"new_this_week"`
	ActiveWeek int `json:"active_last_week"`
	Messages   int `json:"total_messages"`
}

// FollowerService is a read-through cache over the followers table.
// Every write invalidates the single-follower key, the stats key and the
// all-followers map together so the three views never drift apart.
type FollowerService struct {
	DB          *gorm.DB
	Cache       cache.Store
	FollowerTTL int
	StatsTTL    int
	Location    *time.Location
}

func NewFollowerService(db *gorm.DB, store cache.Store, followerTTL, statsTTL int, loc *time.Location) *FollowerService {
	return &FollowerService{
		DB:          db,
		Cache:       store,
		FollowerTTL: followerTTL,
		StatsTTL:    statsTTL,
		Location:    loc,
	}
}

// GetFollower resolves one follower, trying the per-user key, then the
// all-followers map (built from the table when absent), then a single-row
// read for users created after the map was cached. Cache misses repopulate
// the per-user key.
func (s *FollowerService) GetFollower(userID string) (*models.Follower, error) {
	if raw, err := s.Cache.Get(FOLLOWER_KEY_PREFIX + userID); err == nil {
		var f models.Follower
		if err := json.Unmarshal([]byte(raw), &f); err == nil {
			return &f, nil
		}
	}

	all, err := s.allFollowersMap()
	if err != nil {
		return nil, err
	}
	if f, ok := all[userID]; ok {
		s.cacheFollower(&f)
		return &f, nil
	}

	var f models.Follower
	if err := s.DB.Where("user_id = ?", userID).First(&f).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	s.cacheFollower(&f)
	return &f, nil
}

// RecordFollow upserts a follower from a fresh profile. Re-follows bump the
// follow count and the last follow date but keep the first follow date.
func (s *FollowerService) RecordFollow(profile *tools.LineProfile, source string) (*models.Follower, error) {
	now := time.Now()

	var f models.Follower
	err := s.DB.Where("user_id = ?", profile.UserID).First(&f).Error
	switch {
	case gorm.IsRecordNotFoundError(err):
		f = models.Follower{
			UserID:          profile.UserID,
			DisplayName:     profile.DisplayName,
			PictureURL:      profile.PictureURL,
			Language:        profile.Language,
			StatusMessage:   profile.StatusMessage,
			FirstFollowDate: &now,
			LastFollowDate:  &now,
			FollowCount:     1,
			Status:          models.FOLLOWER_STATUS_ACTIVE,
			SourceChannel:   source,
			Tags:            models.FOLLOWER_DEFAULT_TAGS,
		}
		if err := s.DB.Create(&f).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		f.DisplayName = profile.DisplayName
		f.PictureURL = profile.PictureURL
		f.Language = profile.Language
		f.StatusMessage = profile.StatusMessage
		f.LastFollowDate = &now
		f.FollowCount++
		f.Status = models.FOLLOWER_STATUS_ACTIVE
		if err := s.DB.Save(&f).Error; err != nil {
			return nil, err
		}
	}

	s.invalidate(profile.UserID)
	return &f, nil
}

// UpdateStatus flips a follower between active and blocked.
func (s *FollowerService) UpdateStatus(userID, status string) error {
	err := s.DB.Model(&models.Follower{}).
		Where("user_id = ?", userID).
		Update("status", status).Error
	if err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// UpdateInteraction records one inbound message from the follower.
func (s *FollowerService) UpdateInteraction(userID string) error {
	now := time.Now()
	err := s.DB.Model(&models.Follower{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"last_interaction": &now,
			"total_messages":   gorm.Expr("total_messages + 1"),
		}).Error
	if err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

func (s *FollowerService) AddTag(userID, tag string) error {
	f, err := s.GetFollower(userID)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("follower %s not found", userID)
	}

	tags := splitTags(f.Tags)
	for _, t := range tags {
		if t == tag {
			return nil
		}
	}
	tags = append(tags, tag)

	if err := s.DB.Model(&models.Follower{}).
		Where("user_id = ?", userID).
		Update("tags", strings.Join(tags, ",")).Error; err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

func (s *FollowerService) RemoveTag(userID, tag string) error {
	f, err := s.GetFollower(userID)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("follower %s not found", userID)
	}

	var kept []string
	for _, t := range splitTags(f.Tags) {
		if t != tag {
			kept = append(kept, t)
		}
	}

	if err := s.DB.Model(&models.Follower{}).
		Where("user_id = ?", userID).
		Update("tags", strings.Join(kept, ",")).Error; err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// Statistics aggregates the follower base, served from cache for a few
// minutes between recomputes.
func (s *FollowerService) Statistics() (*FollowerStats, error) {
	if raw, err := s.Cache.Get(FOLLOWER_STATS_KEY); err == nil {
		var stats FollowerStats
		if err := json.Unmarshal([]byte(raw), &stats); err == nil {
			return &stats, nil
		}
	}

	var followers []models.Follower
	if err := s.DB.Find(&followers).Error; err != nil {
		return nil, err
	}

	weekAgo := time.Now().In(s.Location).AddDate(0, 0, -7)

	var stats FollowerStats
	stats.Total = len(followers)
	for _, f := range followers {
		if f.Status == models.FOLLOWER_STATUS_ACTIVE {
			stats.Active++
		} else {
			stats.Blocked++
		}
		if f.FirstFollowDate != nil && f.FirstFollowDate.After(weekAgo) {
			stats.NewWeek++
		}
		if f.LastInteraction != nil && f.LastInteraction.After(weekAgo) {
			stats.ActiveWeek++
		}
		stats.Messages += f.TotalMessages
	}

	if raw, err := json.Marshal(stats); err == nil {
		s.Cache.Put(FOLLOWER_STATS_KEY, string(raw), s.StatsTTL)
	}
	return &stats, nil
}

// ActiveFollowers lists followers who have not blocked the bot and have
// interacted within the last days.
func (s *FollowerService) ActiveFollowers(days int) ([]models.Follower, error) {
	if days < 1 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)

	var followers []models.Follower
	err := s.DB.Where("status = ? AND last_interaction >= ?",
		models.FOLLOWER_STATUS_ACTIVE, since).Find(&followers).Error
	return followers, err
}

// ByTag lists followers carrying the tag.
func (s *FollowerService) ByTag(tag string) ([]models.Follower, error) {
	all, err := s.allFollowers()
	if err != nil {
		return nil, err
	}

	var matched []models.Follower
	for _, f := range all {
		for _, t := range splitTags(f.Tags) {
			if t == tag {
				matched = append(matched, f)
				break
			}
		}
	}
	return matched, nil
}

// TopActive returns the n followers with the most messages sent.
func (s *FollowerService) TopActive(n int) ([]models.Follower, error) {
	var followers []models.Follower
	err := s.DB.Where("status = ?", models.FOLLOWER_STATUS_ACTIVE).
		Order("total_messages desc").
		Limit(n).
		Find(&followers).Error
	return followers, err
}

// ExportCSV streams the whole follower base as CSV.
func (s *FollowerService) ExportCSV(w io.Writer) error {
	followers, err := s.allFollowers()
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	cw.Write([]string{
		"user_id", "display_name", "status", "source_channel", "tags",
		"follow_count", "total_messages", "first_follow_date", "last_interaction",
	})
	for _, f := range followers {
		cw.Write([]string{
			f.UserID,
			f.DisplayName,
			f.Status,
			f.SourceChannel,
			f.Tags,
			strconv.Itoa(f.FollowCount),
			strconv.Itoa(f.TotalMessages),
			formatTime(f.FirstFollowDate),
			formatTime(f.LastInteraction),
		})
	}
	cw.Flush()
	return cw.Error()
}

// allFollowersMap serves the full table through the map cache, building
// and caching the map on a miss.
func (s *FollowerService) allFollowersMap() (map[string]models.Follower, error) {
	if raw, err := s.Cache.Get(ALL_FOLLOWERS_MAP_KEY); err == nil {
		var all map[string]models.Follower
		if err := json.Unmarshal([]byte(raw), &all); err == nil {
			return all, nil
		}
	}

	var followers []models.Follower
	if err := s.DB.Find(&followers).Error; err != nil {
		return nil, err
	}

	all := make(map[string]models.Follower, len(followers))
	for _, f := range followers {
		all[f.UserID] = f
	}
	if raw, err := json.Marshal(all); err == nil {
		s.Cache.Put(ALL_FOLLOWERS_MAP_KEY, string(raw), s.FollowerTTL)
	}
	return all, nil
}

func (s *FollowerService) allFollowers() ([]models.Follower, error) {
	all, err := s.allFollowersMap()
	if err != nil {
		return nil, err
	}
	out := make([]models.Follower, 0, len(all))
	for _, f := range all {
		out = append(out, f)
	}
	return out, nil
}

func (s *FollowerService) cacheFollower(f *models.Follower) {
	raw, err := json.Marshal(f)
	if err != nil {
		return
	}
	if err := s.Cache.Put(FOLLOWER_KEY_PREFIX+f.UserID, string(raw), s.FollowerTTL); err != nil {
		log.Printf("follower: cache put failed for %s: %v", f.UserID, err)
	}
}

func (s *FollowerService) invalidate(userID string) {
	s.Cache.Remove(FOLLOWER_KEY_PREFIX + userID)
	s.Cache.Remove(FOLLOWER_STATS_KEY)
	s.Cache.Remove(ALL_FOLLOWERS_MAP_KEY)
}

func splitTags(tags string) []string {
	var out []string
	for _, t := range strings.Split(tags, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
