package middleware

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"weblog/internal/db"
	"weblog/internal/models"
)

var subscribersRe = regexp.MustCompile(`(\d+) subscribers?`)

// ParseSubscribers extracts the subscriber count a feed reader reports in
// its User-Agent, and the agent string with the number replaced by X.
func ParseSubscribers(userAgent string) (int, string, bool) {
	m := subscribersRe.FindStringSubmatch(userAgent)
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return n, subscribersRe.ReplaceAllString(userAgent, "X subscribers"), true
}

// FeedStats records at most one SubscriberCount per day for each
// (path, count, agent). Only successful feed responses are counted.
func FeedStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.Method != http.MethodGet || c.Writer.Status() != http.StatusOK {
			return
		}
		if count, ua, ok := ParseSubscribers(c.GetHeader("User-Agent")); ok {
			recordSubscribers(c.Request.URL.Path, count, ua, time.Now().UTC())
		}
	}
}

func recordSubscribers(path string, count int, ua string, now time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	row := models.SubscriberCount{Path: path, Count: count, UserAgent: ua, Created: today}
	err := db.DB.Where(map[string]interface{}{
		"path":       path,
		"count":      count,
		"user_agent": ua,
		"created":    today,
	}).FirstOrCreate(&row).Error
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("record subscriber count failed")
	}
}
