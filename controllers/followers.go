package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"yondaime/services"
)

type FollowersController struct {
	Followers *services.FollowerService
}

func (f *FollowersController) Get(c *gin.Context) {
	follower, err := f.Followers.GetFollower(c.Param("id"))
	if err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	if follower == nil {
		RespondError(c, "follower not found", 404)
		return
	}
	RespondSuccess(c, follower)
}

func (f *FollowersController) Stats(c *gin.Context) {
	stats, err := f.Followers.Statistics()
	if err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	RespondSuccess(c, stats)
}

// List returns recently active followers, optionally filtered by tag. The
// activity window defaults to 7 days.
func (f *FollowersController) List(c *gin.Context) {
	if tag := c.Query("tag"); tag != "" {
		followers, err := f.Followers.ByTag(tag)
		if err != nil {
			RespondError(c, err.Error(), 500)
			return
		}
		RespondSuccess(c, followers)
		return
	}

	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 {
		RespondError(c, "days must be a positive number", 400)
		return
	}
	followers, err := f.Followers.ActiveFollowers(days)
	if err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	RespondSuccess(c, followers)
}

func (f *FollowersController) Top(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", "10"))
	if err != nil || n < 1 {
		RespondError(c, "n must be a positive number", 400)
		return
	}
	followers, err := f.Followers.TopActive(n)
	if err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	RespondSuccess(c, followers)
}

func (f *FollowersController) Export(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="followers.csv"`)
	if err := f.Followers.ExportCSV(c.Writer); err != nil {
		RespondError(c, err.Error(), 500)
	}
}

func (f *FollowersController) AddTag(c *gin.Context) {
	var body struct {
		Tag string `json:"tag"`
	}
	if err := c.BindJSON(&body); err != nil || body.Tag == "" {
		RespondError(c, "tag is required", 400)
		return
	}
	if err := f.Followers.AddTag(c.Param("id"), body.Tag); err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	RespondSuccess(c, gin.H{"status": "ok"})
}

func (f *FollowersController) RemoveTag(c *gin.Context) {
	if err := f.Followers.RemoveTag(c.Param("id"), c.Param("tag")); err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	RespondSuccess(c, gin.H{"status": "ok"})
}
