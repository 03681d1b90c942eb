package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/flagx"
	"github.com/joho/godotenv"
)

// defaultEnvFile is loaded when present and -env is not given.
const defaultEnvFile = ".env"

// parseEnv overlays Config with process environment variables, after
// loading a dotenv file into the environment. Variables already set in the
// process win over the file. An explicit -env file that cannot be read
// panics, like an unreadable JSON config.
func parseEnv(config *Config) {
	if path := flagx.EnvFileFlags(); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	} else if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	envString("HTTP_ADDR", &config.HTTPAddr)
	envString("DATABASE_DSN", &config.DatabaseDSN)
	envString("JWT_SECRET", &config.SecretKey)
	envDuration("JWT_EXPIRE", &config.TokenValidityDuration)
	envBool("COOKIE_SECURE", &config.CookieSecure)
	envDuration("OTP_EXPIRE", &config.OTPValidityDuration)
	envString("LOG_LEVEL", &config.LogLevel)

	envString("S3_ROOT_USER", &config.S3RootUser)
	envString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("S3_BUCKET", &config.S3Bucket)
	envString("S3_REGION", &config.S3Region)
	envString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)

	envString("MAIL_BACKEND", &config.MailBackend)
	envString("SMTP_HOST", &config.SMTPHost)
	envInt("SMTP_PORT", &config.SMTPPort)
	envString("SMTP_USER", &config.SMTPUser)
	envString("SMTP_PASSWORD", &config.SMTPPassword)
	envString("SMTP_FROM", &config.SMTPFrom)
	envString("AMQP_URL", &config.AMQPURL)
	envString("AMQP_EXCHANGE", &config.AMQPExchange)
	envString("AMQP_ROUTING_KEY", &config.AMQPRoutingKey)

	envString("REDIS_ADDR", &config.RedisAddr)
	envInt("OTP_MAX_ATTEMPTS", &config.MaxOTPAttempts)

	envString("UPLOAD_DIR", &config.UploadDir)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		panic(err)
	}
	*dst = n
}

func envBool(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		panic(err)
	}
	*dst = b
}

// envDuration accepts a bare integer as minutes ("10") or any
// time.ParseDuration string ("10m", "24h").
func envDuration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Minute
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}
