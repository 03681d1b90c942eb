// Package rest exposes the account workflow over HTTP with gin.
package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/filex"
	"github.com/dmitrijs2005/gophaccounts/internal/logging"
	"github.com/dmitrijs2005/gophaccounts/internal/server/accounts"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	"github.com/gin-gonic/gin"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
	maxMultipartMem   = 8 << 20
	// defaultMaxUploadBytes caps a whole register or updateprofile body.
	defaultMaxUploadBytes = 10 << 20
)

// AccountService is the workflow the handlers drive.
type AccountService interface {
	Register(ctx context.Context, in accounts.RegisterInput) (*models.Account, error)
	VerifyOTP(ctx context.Context, accountID string, code int) (*models.Account, error)
	Authenticate(ctx context.Context, email, password string) (*models.Account, error)
	Profile(ctx context.Context, accountID string) (*models.Account, error)
	UpdateProfile(ctx context.Context, accountID string, in accounts.UpdateProfileInput) (*models.Account, error)
	ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error
	RequestPasswordReset(ctx context.Context, email string) error
	CompletePasswordReset(ctx context.Context, code int, newPassword string) error
}

// Settings controls the auth cookie.
type Settings struct {
	SecretKey     string
	TokenValidity time.Duration
	CookieSecure  bool
	// MaxUploadBytes caps multipart bodies; zero means 10 MiB.
	MaxUploadBytes int64
}

type Server struct {
	address       string
	accounts      AccountService
	uploads       *filex.TempStore
	logger        logging.Logger
	jwtSecret     []byte
	tokenValidity time.Duration
	cookieSecure  bool
	maxUpload     int64
	router        *gin.Engine
}

func NewServer(a string, l logging.Logger, svc AccountService, uploads *filex.TempStore, s Settings) *Server {
	srv := &Server{
		address:       a,
		accounts:      svc,
		uploads:       uploads,
		logger:        l.With("module", "rest_server"),
		jwtSecret:     []byte(s.SecretKey),
		tokenValidity: s.TokenValidity,
		cookieSecure:  s.CookieSecure,
		maxUpload:     s.MaxUploadBytes,
	}
	if srv.maxUpload <= 0 {
		srv.maxUpload = defaultMaxUploadBytes
	}
	srv.router = srv.routes()
	return srv
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = maxMultipartMem
	r.Use(gin.Recovery(), s.requestLogger)

	api := r.Group("/api/v1")
	{
		api.GET("/healthz", s.healthz)
		api.POST("/register", s.limitBody, s.register)
		api.POST("/login", s.login)
		api.GET("/logout", s.logout)
		api.POST("/forgetpassword", s.forgetPassword)
		api.PUT("/resetpassword", s.resetPassword)
	}

	protected := api.Group("")
	protected.Use(s.requireAuth)
	{
		protected.POST("/verify", s.verify)
		protected.GET("/me", s.me)
		protected.PUT("/updateprofile", s.limitBody, s.updateProfile)
		protected.PUT("/updatepassword", s.updatePassword)
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
