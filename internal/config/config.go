package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the api and copilotd processes.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Media    MediaConfig
	Backend  BackendConfig
	Provider ProviderConfig
	Call     CallConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// MediaConfig configures room-join token minting for the media server.
// The join token is not a security perimeter; its TTL is generous
// relative to call duration.
type MediaConfig struct {
	APIKey    string
	APISecret string
	URL       string
	TokenTTL  time.Duration
}

// BackendConfig points the device-side clients (room provisioner, session
// recorder) at the backend API.
type BackendConfig struct {
	BaseURL        string
	RequestTimeout time.Duration

	// APIToken authenticates the device against the backend. A long-lived
	// device token; rotation happens out of band.
	APIToken string
}

// ProviderConfig configures the bridge to the external call-management
// provider that delivers start/end actions.
type ProviderConfig struct {
	WSURL             string
	HandshakeTimeout  time.Duration
	MaxReconnectTries int
}

// CallConfig tunes the call orchestrator.
type CallConfig struct {
	// Identity is the user identity calls run under; participant identities
	// derive from it.
	Identity string

	// EndAckDeadline bounds how long resource teardown may delay fulfilling
	// an end action before we fulfill anyway and let teardown finish async.
	EndAckDeadline time.Duration

	// LoggingEnabled is the default conversation-logging preference,
	// snapshotted per call at start.
	LoggingEnabled bool
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Media.APIKey = strings.TrimSpace(os.Getenv("MEDIA_API_KEY"))
	c.Media.APISecret = os.Getenv("MEDIA_API_SECRET")
	c.Media.URL = strings.TrimSpace(os.Getenv("MEDIA_URL"))
	c.Media.TokenTTL = mustDuration("MEDIA_TOKEN_TTL")

	c.Backend.BaseURL = strings.TrimSpace(os.Getenv("BACKEND_BASE_URL"))
	c.Backend.RequestTimeout = mustDuration("BACKEND_REQUEST_TIMEOUT")
	c.Backend.APIToken = os.Getenv("BACKEND_API_TOKEN")

	c.Provider.WSURL = strings.TrimSpace(os.Getenv("PROVIDER_WS_URL"))
	c.Provider.HandshakeTimeout = mustDuration("PROVIDER_HANDSHAKE_TIMEOUT")
	{
		n, err := optionalInt("PROVIDER_MAX_RECONNECT_TRIES")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Provider.MaxReconnectTries = n
	}

	c.Call.Identity = strings.TrimSpace(os.Getenv("CALL_IDENTITY"))
	c.Call.EndAckDeadline = mustDuration("CALL_END_ACK_DEADLINE")
	c.Call.LoggingEnabled = parseBool(os.Getenv("CALL_LOGGING_ENABLED"), true)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadDaemon loads configuration for the device daemon, which has no
// database, redis or token-minting concerns. Same env vars, smaller
// required set.
func LoadDaemon() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.Backend.BaseURL = strings.TrimSpace(os.Getenv("BACKEND_BASE_URL"))
	c.Backend.RequestTimeout = mustDuration("BACKEND_REQUEST_TIMEOUT")
	c.Backend.APIToken = os.Getenv("BACKEND_API_TOKEN")

	c.Provider.WSURL = strings.TrimSpace(os.Getenv("PROVIDER_WS_URL"))
	c.Provider.HandshakeTimeout = mustDuration("PROVIDER_HANDSHAKE_TIMEOUT")
	{
		n, err := optionalInt("PROVIDER_MAX_RECONNECT_TRIES")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Provider.MaxReconnectTries = n
	}

	c.Call.Identity = strings.TrimSpace(os.Getenv("CALL_IDENTITY"))
	c.Call.EndAckDeadline = mustDuration("CALL_END_ACK_DEADLINE")
	c.Call.LoggingEnabled = parseBool(os.Getenv("CALL_LOGGING_ENABLED"), true)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.ValidateDaemon(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required fields and fills environment-appropriate defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Media.APIKey == "" {
		errs = append(errs, errors.New("MEDIA_API_KEY is required"))
	}
	if c.Media.APISecret == "" {
		errs = append(errs, errors.New("MEDIA_API_SECRET is required"))
	}
	if c.Media.URL == "" {
		errs = append(errs, errors.New("MEDIA_URL is required"))
	}
	if c.Media.TokenTTL <= 0 {
		// Join tokens must comfortably outlive any plausible call.
		c.Media.TokenTTL = 10 * time.Hour
	}

	if c.Backend.RequestTimeout <= 0 {
		c.Backend.RequestTimeout = 10 * time.Second
	}

	if c.Provider.HandshakeTimeout <= 0 {
		c.Provider.HandshakeTimeout = 10 * time.Second
	}
	if c.Provider.MaxReconnectTries <= 0 {
		c.Provider.MaxReconnectTries = 10
	}

	if c.Call.EndAckDeadline <= 0 {
		// Must stay well inside the provider's end-action deadline.
		c.Call.EndAckDeadline = 2 * time.Second
	}

	return joinErrors(errs)
}

// ValidateDaemon checks the subset of config the device daemon needs.
func (c *Config) ValidateDaemon() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("BACKEND_BASE_URL is required"))
	}
	if c.Backend.APIToken == "" {
		errs = append(errs, errors.New("BACKEND_API_TOKEN is required"))
	}
	if c.Backend.RequestTimeout <= 0 {
		c.Backend.RequestTimeout = 10 * time.Second
	}

	if c.Provider.WSURL == "" {
		errs = append(errs, errors.New("PROVIDER_WS_URL is required"))
	}
	if c.Provider.HandshakeTimeout <= 0 {
		c.Provider.HandshakeTimeout = 10 * time.Second
	}
	if c.Provider.MaxReconnectTries <= 0 {
		c.Provider.MaxReconnectTries = 10
	}

	if c.Call.Identity == "" {
		errs = append(errs, errors.New("CALL_IDENTITY is required"))
	}
	if c.Call.EndAckDeadline <= 0 {
		c.Call.EndAckDeadline = 2 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func parseBool(v string, def bool) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
