package rest

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/server/auth"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	"github.com/gin-gonic/gin"
)

const tokenCookie = common.TokenCookieName

type avatarView struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

type userView struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Avatar   avatarView `json:"avatar"`
	Verified bool       `json:"verified"`
}

func newUserView(a *models.Account) userView {
	return userView{
		ID:       a.ID,
		Name:     a.Name,
		Email:    a.Email,
		Avatar:   avatarView{PublicID: a.Avatar.ID, URL: a.Avatar.URL},
		Verified: a.Verified,
	}
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type tokenResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	User    userView `json:"user"`
}

func (s *Server) writeMessage(c *gin.Context, status int, message string) {
	c.JSON(status, messageResponse{Success: true, Message: message})
}

// sendToken issues a fresh token for a, stores it in the auth cookie and
// answers with the public view of the account.
func (s *Server) sendToken(c *gin.Context, a *models.Account, status int, message string) {
	token, err := auth.GenerateToken(a.ID, s.jwtSecret, s.tokenValidity)
	if err != nil {
		s.writeError(c, common.Collaborator("issue token", err))
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(s.tokenValidity),
		MaxAge:   int(s.tokenValidity.Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	c.JSON(status, tokenResponse{Success: true, Message: message, User: newUserView(a)})
}

func (s *Server) clearToken(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
