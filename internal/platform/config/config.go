package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	defaultSMTPPort     = 587
	defaultSequenceName = "invoices"
	defaultInvoicePath  = "invoices"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	Storage   StorageConfig
	SMTP      SMTPConfig
	Invoice   InvoiceConfig
	PubSub    PubSubConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores document database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig names the bucket holding generated invoice documents.
type StorageConfig struct {
	InvoicesBucket string
	PublicBaseURL  string
}

// SMTPConfig holds the mail transport settings used by the notifier.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	AdminEmail  string
}

// InvoiceConfig controls invoice numbering and rendering.
type InvoiceConfig struct {
	SequenceName string
	PathPrefix   string
	TemplatePath string
}

// PubSubConfig configures the optional order event topic.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// ValidationError lists the configuration fields that failed validation.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil || len(e.fields) == 0 {
		return "config: invalid configuration"
	}
	names := append([]string(nil), e.fields...)
	sort.Strings(names)
	return fmt.Sprintf("config: missing or invalid fields [%s]", strings.Join(names, ", "))
}

// Fields returns the offending field names.
func (e *ValidationError) Fields() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.fields...)
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map taking precedence over the
// system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables os.LookupEnv, relying only on maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration from defaults, .env overrides, and
// environment variables, then validates it.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "AG_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "AG_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "AG_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "AG_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "AG_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "AG_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			InvoicesBucket: stringWithDefault(lookup, "AG_STORAGE_INVOICES_BUCKET", ""),
			PublicBaseURL:  strings.TrimRight(stringWithDefault(lookup, "AG_STORAGE_PUBLIC_BASE_URL", ""), "/"),
		},
		SMTP: SMTPConfig{
			Host:        stringWithDefault(lookup, "AG_SMTP_HOST", ""),
			Port:        intWithDefault(lookup, "AG_SMTP_PORT", defaultSMTPPort),
			Username:    stringWithDefault(lookup, "AG_SMTP_USERNAME", ""),
			Password:    stringWithDefault(lookup, "AG_SMTP_PASSWORD", ""),
			FromAddress: stringWithDefault(lookup, "AG_SMTP_FROM_ADDRESS", ""),
			FromName:    stringWithDefault(lookup, "AG_SMTP_FROM_NAME", "AlloyGator Nederland"),
			AdminEmail:  stringWithDefault(lookup, "AG_SMTP_ADMIN_EMAIL", ""),
		},
		Invoice: InvoiceConfig{
			SequenceName: stringWithDefault(lookup, "AG_INVOICE_SEQUENCE_NAME", defaultSequenceName),
			PathPrefix:   strings.Trim(stringWithDefault(lookup, "AG_INVOICE_PATH_PREFIX", defaultInvoicePath), "/"),
			TemplatePath: stringWithDefault(lookup, "AG_INVOICE_TEMPLATE_PATH", ""),
		},
		PubSub: PubSubConfig{
			ProjectID: stringWithDefault(lookup, "AG_PUBSUB_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "AG_PUBSUB_ORDER_EVENTS_TOPIC", ""),
		},
	}

	// A dedicated Pub/Sub project is unusual; default to the Firestore one.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Storage.InvoicesBucket == "" {
		missing = append(missing, "Storage.InvoicesBucket")
	}
	if cfg.Invoice.SequenceName == "" {
		missing = append(missing, "Invoice.SequenceName")
	}
	if cfg.SMTP.Port <= 0 {
		missing = append(missing, "SMTP.Port")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(parts[1]), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
