package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/flagx"
	"github.com/dmitrijs2005/gophaccounts/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "10m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. Pointer and zero-valued fields that are absent from the file leave
// the runtime Config untouched, so the environment layer survives.
type JsonConfig struct {
	HTTPAddr                 string         `json:"http_addr"`
	DatabaseDSN              string         `json:"database_dsn"`
	SecretKey                string         `json:"secret_key"`
	TokenValidityDuration    timex.Duration `json:"token_validity_duration"`
	CookieSecure             *bool          `json:"cookie_secure"`
	OTPValidityDuration      timex.Duration `json:"otp_validity_duration"`
	ResetOTPValidityDuration timex.Duration `json:"reset_otp_validity_duration"`
	LogLevel                 string         `json:"log_level"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	MailBackend    string `json:"mail_backend"`
	SMTPHost       string `json:"smtp_host"`
	SMTPPort       int    `json:"smtp_port"`
	SMTPUser       string `json:"smtp_user"`
	SMTPPassword   string `json:"smtp_password"`
	SMTPFrom       string `json:"smtp_from"`
	AMQPURL        string `json:"amqp_url"`
	AMQPExchange   string `json:"amqp_exchange"`
	AMQPRoutingKey string `json:"amqp_routing_key"`

	RedisAddr      string         `json:"redis_addr"`
	MaxOTPAttempts int            `json:"otp_max_attempts"`
	AttemptWindow  timex.Duration `json:"otp_attempt_window"`

	UploadDir string `json:"upload_dir"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags. If neither
// is set, no JSON file is loaded. If the file cannot be read or contains
// invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.TokenValidityDuration, c.TokenValidityDuration)
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
	setDuration(&config.OTPValidityDuration, c.OTPValidityDuration)
	setDuration(&config.ResetOTPValidityDuration, c.ResetOTPValidityDuration)
	setString(&config.LogLevel, c.LogLevel)

	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	setString(&config.MailBackend, c.MailBackend)
	setString(&config.SMTPHost, c.SMTPHost)
	if c.SMTPPort != 0 {
		config.SMTPPort = c.SMTPPort
	}
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.SMTPFrom, c.SMTPFrom)
	setString(&config.AMQPURL, c.AMQPURL)
	setString(&config.AMQPExchange, c.AMQPExchange)
	setString(&config.AMQPRoutingKey, c.AMQPRoutingKey)

	setString(&config.RedisAddr, c.RedisAddr)
	if c.MaxOTPAttempts != 0 {
		config.MaxOTPAttempts = c.MaxOTPAttempts
	}
	setDuration(&config.AttemptWindow, c.AttemptWindow)

	setString(&config.UploadDir, c.UploadDir)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
