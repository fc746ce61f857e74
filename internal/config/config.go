// Package config provides functionality for managing configuration options
// for the application using command-line flags, an optional JSON config file
// and environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	env "github.com/Netflix/go-env"
)

// Options holds the configuration values for the application.
type Options struct {
	// Address defines the server's listening address (ip:port).
	Address string `json:"server_address" env:"SERVER_ADDRESS"`

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string `json:"database_dsn" env:"DATABASE_DSN"`

	// Config is the path to the Config file.
	Config string `json:"-" env:"CONFIG"`

	LogLevel string `json:"log_level" env:"LOG_LEVEL"`

	// PrivateKeyPath points to the PEM encoded RSA signing key. A missing
	// file makes the server generate an ephemeral key.
	PrivateKeyPath string `json:"private_key_path" env:"PRIVATE_KEY_PATH"`

	// ToleranceMSE and ToleranceMax are the strict upper bounds a match must
	// stay under.
	ToleranceMSE float64 `json:"verification_tolerance_mse" env:"VERIFICATION_TOLERANCE_MSE"`
	ToleranceMax float64 `json:"verification_tolerance_max" env:"VERIFICATION_TOLERANCE_MAX"`

	TokenTTL       time.Duration `json:"-" env:"TOKEN_TTL"`
	StorageTimeout time.Duration `json:"-" env:"STORAGE_TIMEOUT"`

	// AdminToken guards the /admin routes. Empty disables them.
	AdminToken string `json:"admin_token" env:"ADMIN_TOKEN"`

	// AuditRetention is how long audit entries are kept. Zero keeps them forever.
	AuditRetention       time.Duration `json:"-" env:"AUDIT_RETENTION"`
	AuditCleanupInterval time.Duration `json:"-" env:"AUDIT_CLEANUP_INTERVAL"`

	TLSCert string `json:"tls_cert" env:"TLS_CERT"`
	TLSKey  string `json:"tls_key" env:"TLS_KEY"`
}

// fileDurations carries the duration settings of the JSON config file,
// written the way time.ParseDuration reads them ("60m", "5s").
type fileDurations struct {
	TokenTTL             string `json:"token_ttl"`
	StorageTimeout       string `json:"storage_timeout"`
	AuditRetention       string `json:"audit_retention"`
	AuditCleanupInterval string `json:"audit_cleanup_interval"`
}

// Parse reads the command-line flags, then the config file, then the
// environment, each overriding the previous one, and validates the result.
func Parse() (*Options, error) {
	return parse(os.Args[1:])
}

func parse(args []string) (*Options, error) {
	options := &Options{}

	fs := flag.NewFlagSet("smartstamp", flag.ContinueOnError)
	fs.StringVar(&options.Address, "a", "localhost:8000", "run on ip:port server")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	fs.StringVar(&options.LogLevel, "l", "info", "log level")
	fs.StringVar(&options.PrivateKeyPath, "k", "keys/private_key.pem", "path to RSA private key")
	fs.Float64Var(&options.ToleranceMSE, "mse", 0.0001, "MSE tolerance for a match")
	fs.Float64Var(&options.ToleranceMax, "max-error", 0.01, "max absolute error tolerance for a match")
	fs.DurationVar(&options.TokenTTL, "token-ttl", 60*time.Minute, "lifetime of issued tokens")
	fs.DurationVar(&options.StorageTimeout, "storage-timeout", 5*time.Second, "deadline for storage calls of one request")
	fs.StringVar(&options.AdminToken, "admin-token", "", "bearer token for admin routes")
	fs.DurationVar(&options.AuditRetention, "audit-retention", 0, "delete audit entries older than this (0 disables)")
	fs.DurationVar(&options.AuditCleanupInterval, "audit-cleanup-interval", time.Hour, "how often to run audit cleanup")
	fs.StringVar(&options.TLSCert, "tls-cert", "", "TLS certificate file")
	fs.StringVar(&options.TLSKey, "tls-key", "", "TLS key file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// The config file location itself may come from the environment.
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if err := loadFile(options); err != nil {
		return nil, err
	}

	if _, err := env.UnmarshalFromEnviron(options); err != nil {
		return nil, fmt.Errorf("error while reading environment: %w", err)
	}

	if err := options.validate(); err != nil {
		return nil, err
	}
	return options, nil
}

// loadFile applies the JSON config file if it exists.
func loadFile(options *Options) error {
	if options.Config == "" {
		return nil
	}
	data, err := os.ReadFile(options.Config)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}

	if err := json.Unmarshal(data, options); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}

	var d fileDurations
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	for _, f := range []struct {
		raw string
		dst *time.Duration
	}{
		{d.TokenTTL, &options.TokenTTL},
		{d.StorageTimeout, &options.StorageTimeout},
		{d.AuditRetention, &options.AuditRetention},
		{d.AuditCleanupInterval, &options.AuditCleanupInterval},
	} {
		if f.raw == "" {
			continue
		}
		v, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("error while parsing config file: %w", err)
		}
		*f.dst = v
	}
	return nil
}

func (o *Options) validate() error {
	var errs []error
	if o.Address == "" {
		errs = append(errs, errors.New("SERVER_ADDRESS must not be empty"))
	}
	if o.DatabaseDSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be set"))
	}
	if !positive(o.ToleranceMSE) {
		errs = append(errs, fmt.Errorf("VERIFICATION_TOLERANCE_MSE must be a positive number, got %v", o.ToleranceMSE))
	}
	if !positive(o.ToleranceMax) {
		errs = append(errs, fmt.Errorf("VERIFICATION_TOLERANCE_MAX must be a positive number, got %v", o.ToleranceMax))
	}
	if o.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTL must be positive, got %s", o.TokenTTL))
	}
	if o.StorageTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STORAGE_TIMEOUT must be positive, got %s", o.StorageTimeout))
	}
	if o.AuditRetention < 0 {
		errs = append(errs, fmt.Errorf("AUDIT_RETENTION must not be negative, got %s", o.AuditRetention))
	}
	if o.AuditRetention > 0 && o.AuditCleanupInterval <= 0 {
		errs = append(errs, errors.New("AUDIT_CLEANUP_INTERVAL must be positive when AUDIT_RETENTION is set"))
	}
	if (o.TLSCert == "") != (o.TLSKey == "") {
		errs = append(errs, errors.New("TLS_CERT and TLS_KEY must be set together"))
	}
	return errors.Join(errs...)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
