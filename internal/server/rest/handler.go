package rest

import (
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/server/accounts"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	OTP otpCode `json:"otp"`
}

type updatePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type forgetPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	OTP         otpCode `json:"otp"`
	NewPassword string  `json:"newPassword"`
}

// bindJSON decodes the body into dst and answers with onFail when it cannot.
func (s *Server) bindJSON(c *gin.Context, dst any, onFail error) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.logger.Debug(c.Request.Context(), "bad request body", "error", err)
		s.writeError(c, onFail)
		return false
	}
	return true
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) register(c *gin.Context) {
	avatar, cleanup, err := s.avatarUpload(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer cleanup()

	account, err := s.accounts.Register(c.Request.Context(), accounts.RegisterInput{
		Name:     c.PostForm("name"),
		Email:    c.PostForm("email"),
		Password: c.PostForm("password"),
		Avatar:   avatar,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.logger.Info(c.Request.Context(), "Registered", "account_id", account.ID)
	s.sendToken(c, account, http.StatusCreated, "OTP sent to your email, please verify your account")
}

func (s *Server) verify(c *gin.Context) {
	var req verifyRequest
	if !s.bindJSON(c, &req, common.ErrInvalidOrExpiredOTP) {
		return
	}
	if !req.OTP.Present {
		s.writeError(c, common.ErrInvalidOrExpiredOTP)
		return
	}

	account, err := s.accounts.VerifyOTP(c.Request.Context(), currentAccountID(c), req.OTP.Value)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.sendToken(c, account, http.StatusOK, "Account Verified")
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if !s.bindJSON(c, &req, common.ErrMissingCredentials) {
		return
	}

	account, err := s.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.sendToken(c, account, http.StatusOK, "Login Successfully")
}

func (s *Server) logout(c *gin.Context) {
	s.clearToken(c)
	s.writeMessage(c, http.StatusOK, "Logged Out Successfully")
}

func (s *Server) me(c *gin.Context) {
	account, err := s.accounts.Profile(c.Request.Context(), currentAccountID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.sendToken(c, account, http.StatusOK, fmt.Sprintf("Welcome back %s", account.Name))
}

func (s *Server) updateProfile(c *gin.Context) {
	avatar, cleanup, err := s.avatarUpload(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer cleanup()

	_, err = s.accounts.UpdateProfile(c.Request.Context(), currentAccountID(c), accounts.UpdateProfileInput{
		Name:   c.PostForm("name"),
		Avatar: avatar,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.writeMessage(c, http.StatusOK, "Profile Updated Successfully")
}

func (s *Server) updatePassword(c *gin.Context) {
	var req updatePasswordRequest
	if !s.bindJSON(c, &req, common.ErrMissingFields) {
		return
	}

	if err := s.accounts.ChangePassword(c.Request.Context(), currentAccountID(c), req.OldPassword, req.NewPassword); err != nil {
		s.writeError(c, err)
		return
	}

	s.writeMessage(c, http.StatusOK, "Password Updated Successfully")
}

func (s *Server) forgetPassword(c *gin.Context) {
	var req forgetPasswordRequest
	if !s.bindJSON(c, &req, common.ErrMissingFields) {
		return
	}

	if err := s.accounts.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		s.writeError(c, err)
		return
	}

	s.writeMessage(c, http.StatusOK, fmt.Sprintf("OTP sent to email %s", req.Email))
}

func (s *Server) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !s.bindJSON(c, &req, common.ErrInvalidOrExpiredResetOTP) {
		return
	}
	if !req.OTP.Present || req.NewPassword == "" {
		s.writeError(c, common.ErrMissingFields)
		return
	}

	if err := s.accounts.CompletePasswordReset(c.Request.Context(), req.OTP.Value, req.NewPassword); err != nil {
		s.writeError(c, err)
		return
	}

	s.writeMessage(c, http.StatusOK, "Password Changed Successfully")
}
