package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorMapping struct {
	err     error
	status  int
	message string
}

// errorMappings is checked in order; narrower errors come before the ones
// they wrap.
var errorMappings = []errorMapping{
	{common.ErrMissingCredentials, http.StatusBadRequest, "Please enter email and password"},
	{common.ErrInvalidOrExpiredResetOTP, http.StatusBadRequest, "Otp Invalid or has been expired"},
	{common.ErrDuplicateAccount, http.StatusBadRequest, "User already exists"},
	{common.ErrInvalidOrExpiredOTP, http.StatusBadRequest, "Invalid OTP or has been Expired"},
	{common.ErrInvalidCredentials, http.StatusBadRequest, "Invalid email or password"},
	{common.ErrMissingFields, http.StatusBadRequest, "Please enter all fields"},
	{common.ErrNotFound, http.StatusBadRequest, "User does not exist"},
	{common.ErrInvalidOldPassword, http.StatusBadRequest, "Invalid Old Password"},
	{common.ErrUnauthorized, http.StatusUnauthorized, "Please login first"},
	{common.ErrInvalidToken, http.StatusUnauthorized, "Please login first"},
	{common.ErrTokenExpired, http.StatusUnauthorized, "Please login first"},
	{common.ErrTooManyAttempts, http.StatusTooManyRequests, "Too many attempts, try again later"},
	{errUploadTooLarge, http.StatusRequestEntityTooLarge, "Avatar is too large"},
}

func statusAndMessage(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.message
		}
	}
	return http.StatusInternalServerError, err.Error()
}

// writeError is the only place an error becomes a response.
func (s *Server) writeError(c *gin.Context, err error) {
	status, message := statusAndMessage(err)

	if status >= http.StatusInternalServerError {
		attrs := []any{"path", c.Request.URL.Path, "error", err}
		var ce *common.CollaboratorError
		if errors.As(err, &ce) {
			attrs = append(attrs, "op", ce.Op)
		}
		s.logger.Error(c.Request.Context(), "request failed", attrs...)
	}

	c.AbortWithStatusJSON(status, errorResponse{Success: false, Message: message})
}
