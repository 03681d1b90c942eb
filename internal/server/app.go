// Package server initializes and runs the account server. It opens the
// account store selected by the DSN, builds the mail, image and limiter
// collaborators, and serves the HTTP API until a shutdown signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gophaccounts/internal/cryptox"
	"github.com/dmitrijs2005/gophaccounts/internal/filex"
	"github.com/dmitrijs2005/gophaccounts/internal/logging"
	"github.com/dmitrijs2005/gophaccounts/internal/server/accounts"
	"github.com/dmitrijs2005/gophaccounts/internal/server/config"
	"github.com/dmitrijs2005/gophaccounts/internal/server/images"
	"github.com/dmitrijs2005/gophaccounts/internal/server/limiter"
	"github.com/dmitrijs2005/gophaccounts/internal/server/mailer"
	"github.com/dmitrijs2005/gophaccounts/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophaccounts/internal/server/rest"
	"github.com/redis/go-redis/v9"
)

const attemptKeyPrefix = "gophaccounts:attempts:"

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   repomanager.RepositoryManager
	server  *rest.Server
	closers []func() error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (_ *App, err error) {
	app := &App{config: c, logger: logger}
	defer func() {
		if err != nil {
			app.close(ctx)
		}
	}()

	app.repos, err = repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	logger.Info(ctx, "account store ready", "backend", app.repos.Backend())

	m, err := app.newMailer()
	if err != nil {
		return nil, fmt.Errorf("mailer init error: %w", err)
	}

	store, err := images.NewS3Store(ctx, images.S3Config{
		User:         c.S3RootUser,
		Password:     c.S3RootPassword,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("image store init error: %w", err)
	}

	lim, err := app.newLimiter(ctx)
	if err != nil {
		return nil, fmt.Errorf("limiter init error: %w", err)
	}

	uploads, err := filex.NewTempStore(c.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("upload dir init error: %w", err)
	}

	svc := accounts.NewService(
		app.repos.Accounts(),
		cryptox.NewPasswordHasher(cryptox.DefaultParams),
		m,
		store,
		accounts.Settings{
			OTPValidity:      c.OTPValidityDuration,
			ResetOTPValidity: c.ResetOTPValidityDuration,
		},
		accounts.WithLimiter(lim),
		accounts.WithLogger(logger.With("module", "accounts")),
	)

	app.server = rest.NewServer(c.HTTPAddr, logger, svc, uploads, rest.Settings{
		SecretKey:     c.SecretKey,
		TokenValidity: c.TokenValidityDuration,
		CookieSecure:  c.CookieSecure,
	})

	return app, nil
}

func (app *App) newMailer() (accounts.Mailer, error) {
	c := app.config

	switch c.MailBackend {
	case config.MailBackendLog, "":
		return mailer.NewLogMailer(app.logger.With("module", "mailer")), nil
	case config.MailBackendSMTP:
		m, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			User:     c.SMTPUser,
			Password: c.SMTPPassword,
			From:     c.SMTPFrom,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.MailBackendAMQP:
		pub, err := mailer.DialPublisher(c.AMQPURL, c.AMQPExchange)
		if err != nil {
			return nil, err
		}
		m := mailer.NewAMQPMailer(pub, c.AMQPExchange, c.AMQPRoutingKey)
		app.closers = append(app.closers, m.Close)
		return m, nil
	default:
		return nil, fmt.Errorf("unknown mail backend %q", c.MailBackend)
	}
}

func (app *App) newLimiter(ctx context.Context) (accounts.Limiter, error) {
	c := app.config
	if c.RedisAddr == "" || c.MaxOTPAttempts <= 0 {
		return limiter.NopLimiter{}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	app.closers = append(app.closers, rdb.Close)

	return limiter.NewRedisLimiter(rdb, attemptKeyPrefix, c.MaxOTPAttempts, c.AttemptWindow), nil
}

func (app *App) close(ctx context.Context) error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i]())
	}
	app.closers = nil
	if app.repos != nil {
		errs = append(errs, app.repos.Close(ctx))
		app.repos = nil
	}
	return errors.Join(errs...)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a shutdown signal arrives, then
// releases the store and collaborator connections.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.close(context.Background()); err != nil {
		app.logger.Error(ctx, "close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
