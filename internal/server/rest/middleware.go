package rest

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/server/auth"
	"github.com/gin-gonic/gin"
)

const accountIDKey = "accountID"

// requireAuth resolves the token cookie to an account id. Missing, bad and
// expired tokens all answer 401.
func (s *Server) requireAuth(c *gin.Context) {
	token, err := c.Cookie(tokenCookie)
	if err != nil || token == "" {
		s.writeError(c, common.ErrUnauthorized)
		return
	}

	accountID, err := auth.GetAccountIDFromToken(token, s.jwtSecret)
	if err != nil {
		s.logger.Debug(c.Request.Context(), "token rejected", "error", err)
		s.writeError(c, common.ErrUnauthorized)
		return
	}

	c.Set(accountIDKey, accountID)
	c.Next()
}

func currentAccountID(c *gin.Context) string {
	return c.GetString(accountIDKey)
}

func (s *Server) requestLogger(c *gin.Context) {
	start := time.Now()

	c.Next()

	s.logger.Info(c.Request.Context(), "request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"latency", time.Since(start),
	)
}

// limitBody caps the request body at the configured upload size.
func (s *Server) limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	c.Next()
}
