package coinex

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultURL is the production WebSocket endpoint
const DefaultURL = "wss://socket.coinex.com/"

// Options configures a Client. The value is read once at construction;
// there is no shared mutable default.
type Options struct {
	// URL is the WebSocket endpoint
	URL string `yaml:"url"`

	// AccessID and SecretKey are the API credentials, required only for
	// signed queries and subscriptions
	AccessID  string `yaml:"access_id"`
	SecretKey string `yaml:"secret_key"`

	// RequestTimeout bounds how long a query or subscribe waits for its
	// correlated response
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// PingInterval is the keep-alive cadence
	PingInterval time.Duration `yaml:"ping_interval"`

	// ReconnectInterval is the initial reconnect backoff delay
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`

	// MaxRetries caps reconnect attempts per disconnect
	MaxRetries int `yaml:"max_retries"`

	// AutoReconnect governs whether dropped connections are re-established
	// and subscriptions replayed
	AutoReconnect bool `yaml:"auto_reconnect"`

	// SendsPerSecond paces outbound requests; zero disables pacing
	SendsPerSecond int `yaml:"sends_per_second"`

	// LogLevel controls client logging: "debug", "info", "warn", "error"
	LogLevel string `yaml:"log_level"`
}

// NewOptions returns options with production defaults
func NewOptions() *Options {
	return &Options{
		URL:               DefaultURL,
		RequestTimeout:    15 * time.Second,
		PingInterval:      60 * time.Second,
		ReconnectInterval: 5 * time.Second,
		MaxRetries:        3,
		AutoReconnect:     true,
		SendsPerSecond:    20,
		LogLevel:          "info",
	}
}

// WithCredentials sets the API credentials and returns the options for
// chaining
func (o *Options) WithCredentials(accessID, secretKey string) *Options {
	o.AccessID = accessID
	o.SecretKey = secretKey
	return o
}

// HasCredentials reports whether API credentials are configured
func (o *Options) HasCredentials() bool {
	return o.AccessID != "" && o.SecretKey != ""
}

// Key implements socket.CredentialStore
func (o *Options) Key() string {
	return o.AccessID
}

// Secret implements socket.CredentialStore
func (o *Options) Secret() string {
	return o.SecretKey
}

// LoadOptions reads options from a YAML file, starting from defaults and
// finishing with environment overrides. A missing file is not an error so
// deployments can run on env vars alone.
func LoadOptions(path string) (*Options, error) {
	opts := NewOptions()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, opts); err != nil {
				return nil, fmt.Errorf("failed to parse options file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read options file %s: %w", path, err)
		}
	}

	opts.applyEnvOverrides()
	return opts, nil
}

// applyEnvOverrides applies environment variable overrides. Credentials in
// particular are expected to come from the environment rather than a file.
func (o *Options) applyEnvOverrides() {
	if v := os.Getenv("COINEX_WS_URL"); v != "" {
		o.URL = v
	}
	if v := os.Getenv("COINEX_ACCESS_ID"); v != "" {
		o.AccessID = v
	}
	if v := os.Getenv("COINEX_SECRET_KEY"); v != "" {
		o.SecretKey = v
	}
	if v := os.Getenv("COINEX_LOG_LEVEL"); v != "" {
		o.LogLevel = v
	}
}
