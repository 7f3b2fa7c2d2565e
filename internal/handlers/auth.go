package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"weblog/internal/db"
	"weblog/internal/logger"
	"weblog/internal/middleware"
	"weblog/internal/models"
)

type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// safeNext only allows local redirect targets.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

func (h *AuthHandler) ShowLogin(c *gin.Context) {
	middleware.NoCache(c)
	Render(c, http.StatusOK, "login.html", gin.H{"Title": "Log in", "Next": safeNext(c.Query("next"))})
}

func (h *AuthHandler) Login(c *gin.Context) {
	middleware.NoCache(c)
	username := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")
	next := safeNext(c.PostForm("next"))

	var user models.User
	if err := db.DB.Where("username = ?", username).First(&user).Error; err != nil || !user.CheckPassword(password) {
		Render(c, http.StatusUnauthorized, "login.html", gin.H{
			"Title": "Log in", "Next": next, "Username": username,
			"Error": "Incorrect username or password",
		})
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionKey, user.ID)
	if err := session.Save(); err != nil {
		serverError(c, err)
		return
	}
	logger.L().Info().Str("username", user.Username).Msg("staff login")
	c.Redirect(http.StatusFound, next)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		serverError(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}
