package middleware

import (
	"net/http"
	"net/url"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"weblog/internal/db"
	"weblog/internal/models"
)

const (
	CheckUserKey = "user"
	SessionKey   = "user_id"
)

// LoadUser retrieves the logged-in user from the session and sets it on the context.
func LoadUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get(SessionKey)
		if userID != nil {
			var user models.User
			if err := db.DB.First(&user, userID).Error; err == nil {
				c.Set(CheckUserKey, &user)
			}
		}
		c.Next()
	}
}

// CurrentUser returns the user set by LoadUser, or nil.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(CheckUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

func IsStaff(c *gin.Context) bool {
	u := CurrentUser(c)
	return u != nil && u.IsStaff
}

// StaffRequired sends anonymous visitors to the login page and refuses
// logged-in users without the staff flag.
func StaffRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.Redirect(http.StatusFound, "/login/?next="+url.QueryEscape(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}
		if !user.IsStaff {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		NoCache(c)
		c.Next()
	}
}
