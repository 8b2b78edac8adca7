// Package config builds the per-function configuration from the environment.
// A .env file in the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	DefaultRegion        = "fr-par"
	DefaultEndpoint      = "https://s3.fr-par.scw.cloud"
	DefaultWriteAttempts = 3
	DefaultSMTPPort      = 587
	DefaultLogLevel      = "info"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Subscriber configures the subscription function.
type Subscriber struct {
	AccessKey         string
	SecretKey         string
	BucketName        string
	Region            string
	Endpoint          string
	PathStyle         bool
	ConditionalWrites bool
	WriteAttempts     int
	EventBusName      string
	LogLevel          string
}

// Welcome configures the welcome mail function.
type Welcome struct {
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPass      string
	SMTPFrom      string
	SentTableName string
	LogLevel      string
}

// LoadSubscriber reads Subscriber from the process environment.
func LoadSubscriber() (*Subscriber, error) {
	godotenv.Load()
	return SubscriberFromEnv(os.LookupEnv)
}

// LoadWelcome reads Welcome from the process environment.
func LoadWelcome() (*Welcome, error) {
	godotenv.Load()
	return WelcomeFromEnv(os.LookupEnv)
}

// LogLevelFromEnv returns LOG_LEVEL, or the default, for functions that need
// nothing else.
func LogLevelFromEnv() string {
	godotenv.Load()
	return getEnv(os.LookupEnv, "LOG_LEVEL", DefaultLogLevel)
}

func SubscriberFromEnv(lookup LookupFunc) (*Subscriber, error) {
	cfg := &Subscriber{
		Region:       getEnv(lookup, "S3_REGION", DefaultRegion),
		Endpoint:     getEnv(lookup, "S3_ENDPOINT", DefaultEndpoint),
		EventBusName: getEnv(lookup, "EVENT_BUS_NAME", ""),
		LogLevel:     getEnv(lookup, "LOG_LEVEL", DefaultLogLevel),
	}

	var err error
	if cfg.AccessKey, err = requireEnv(lookup, "SCW_ACCESS_KEY"); err != nil {
		return nil, err
	}
	if cfg.SecretKey, err = requireEnv(lookup, "SCW_SECRET_KEY"); err != nil {
		return nil, err
	}
	if cfg.BucketName, err = requireEnv(lookup, "BUCKET_NAME"); err != nil {
		return nil, err
	}
	if cfg.PathStyle, err = boolEnv(lookup, "S3_PATH_STYLE", false); err != nil {
		return nil, err
	}
	if cfg.ConditionalWrites, err = boolEnv(lookup, "LEDGER_CONDITIONAL_WRITES", true); err != nil {
		return nil, err
	}
	if cfg.WriteAttempts, err = intEnv(lookup, "LEDGER_WRITE_ATTEMPTS", DefaultWriteAttempts); err != nil {
		return nil, err
	}
	if cfg.WriteAttempts < 1 {
		return nil, fmt.Errorf("LEDGER_WRITE_ATTEMPTS must be at least 1, got %d", cfg.WriteAttempts)
	}

	return cfg, nil
}

func WelcomeFromEnv(lookup LookupFunc) (*Welcome, error) {
	cfg := &Welcome{
		LogLevel: getEnv(lookup, "LOG_LEVEL", DefaultLogLevel),
	}

	var err error
	if cfg.SMTPHost, err = requireEnv(lookup, "SMTP_SERVER"); err != nil {
		return nil, err
	}
	if cfg.SMTPUser, err = requireEnv(lookup, "SMTP_USER"); err != nil {
		return nil, err
	}
	if cfg.SMTPPass, err = requireEnv(lookup, "SMTP_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.SentTableName, err = requireEnv(lookup, "SENT_TABLE_NAME"); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = intEnv(lookup, "SMTP_PORT", DefaultSMTPPort); err != nil {
		return nil, err
	}
	cfg.SMTPFrom = getEnv(lookup, "SMTP_FROM", cfg.SMTPUser)

	return cfg, nil
}

func getEnv(lookup LookupFunc, key, defaultVal string) string {
	if value, exists := lookup(key); exists && value != "" {
		return value
	}
	return defaultVal
}

func requireEnv(lookup LookupFunc, key string) (string, error) {
	value, exists := lookup(key)
	if !exists || value == "" {
		return "", fmt.Errorf("%s not configured", key)
	}
	return value, nil
}

func boolEnv(lookup LookupFunc, key string, defaultVal bool) (bool, error) {
	value, exists := lookup(key)
	if !exists || value == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

func intEnv(lookup LookupFunc, key string, defaultVal int) (int, error) {
	value, exists := lookup(key)
	if !exists || value == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}
