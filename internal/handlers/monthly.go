package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"weblog/internal/db"
	"weblog/internal/models"
)

type MonthlyHandler struct{}

func NewMonthlyHandler() *MonthlyHandler {
	return &MonthlyHandler{}
}

// Index lists sent newsletters, newest first.
func (h *MonthlyHandler) Index(c *gin.Context) {
	var letters []models.Newsletter
	err := db.DB.Select("id", "subject", "sent_at").
		Where("sent_at IS NOT NULL").Order("sent_at DESC").Find(&letters).Error
	if err != nil {
		serverError(c, err)
		return
	}
	Render(c, http.StatusOK, "monthly_index.html", gin.H{"Title": "Monthly briefing", "Newsletters": letters})
}

// Detail shows the latest newsletter sent in /monthly/YYYY-MM/.
func (h *MonthlyHandler) Detail(c *gin.Context) {
	month, err := time.Parse("2006-01", c.Param("month"))
	if err != nil {
		notFound(c)
		return
	}
	var letter models.Newsletter
	err = db.DB.Where("sent_at >= ? AND sent_at < ?", month, month.AddDate(0, 1, 0)).
		Order("sent_at DESC").First(&letter).Error
	if err != nil {
		lookupFailed(c, err)
		return
	}
	Render(c, http.StatusOK, "monthly.html", gin.H{
		"Title":      letter.Subject,
		"Newsletter": letter,
		"Month":      month,
	})
}
