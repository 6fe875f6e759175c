package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/go-playground/validator/v10"
)

// DefaultHost keeps the control API on the local machine.
const DefaultHost = "127.0.0.1"

type Config struct {
	Server          string        `validate:"omitempty,url"`
	Token           string        `validate:"-"`
	Host            string        `validate:"-"`
	Port            int           `validate:"min=1,max=65535"`
	AllowedOrigins  []string      `validate:"dive,url"`
	DataDir         string        `validate:"required"`
	APIKey          string        `validate:"-"`
	UploadRoot      string        `validate:"-"`
	Proxy           string        `validate:"omitempty,url"`
	ChunkSize       int           `validate:"min=1"`
	PipeCapacity    int           `validate:"min=1"`
	StreamThreshold int64         `validate:"min=0"`
	MaxUploads      int           `validate:"min=1,max=64"`
	Timeout         time.Duration `validate:"min=0"`
	ConnectTimeout  time.Duration `validate:"min=0"`
	LogLevel        string        `validate:"oneof=debug info warn error"`
	Dev             bool
	UserAgent       string
}

func Load() *Config {
	return &Config{
		Server:          strings.TrimRight(getEnv("PARCEL_SERVER", ""), "/"),
		Token:           getEnv("PARCEL_TOKEN", ""),
		Host:            getEnv("PARCEL_HOST", DefaultHost),
		Port:            getEnvInt("PARCEL_PORT", 8080),
		AllowedOrigins:  getEnvList("PARCEL_ALLOWED_ORIGINS"),
		DataDir:         getEnv("PARCEL_DATA_DIR", ".parcel"),
		APIKey:          getEnv("PARCEL_API_KEY", ""),
		UploadRoot:      getEnv("PARCEL_UPLOAD_ROOT", ""),
		Proxy:           getEnv("PARCEL_PROXY", ""),
		ChunkSize:       int(getEnvSize("PARCEL_CHUNK_SIZE", 4*units.KiB)),
		PipeCapacity:    int(getEnvSize("PARCEL_PIPE_CAPACITY", 1_000_000)),
		StreamThreshold: getEnvSize("PARCEL_STREAM_THRESHOLD", 8*units.MiB),
		MaxUploads:      getEnvInt("PARCEL_MAX_UPLOADS", 3),
		Timeout:         getEnvDuration("PARCEL_TIMEOUT", 30*time.Second),
		ConnectTimeout:  getEnvDuration("PARCEL_CONNECT_TIMEOUT", 10*time.Second),
		LogLevel:        strings.ToLower(getEnv("PARCEL_LOG_LEVEL", "info")),
		Dev:             getEnvBool("PARCEL_DEV", false),
		UserAgent:       getEnv("PARCEL_USER_AGENT", "parcel/1.0"),
	}
}

// Validate checks the loaded values before anything is started.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr is the listen address of the control API.
func (c *Config) Addr() string {
	host := c.Host
	if host == "" {
		host = DefaultHost
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// CheckExposure refuses a control API reachable from other machines
// unless it asks for an API key.
func (c *Config) CheckExposure() error {
	if c.APIKey != "" || isLoopback(c.Host) {
		return nil
	}
	return fmt.Errorf("refusing to listen on %s without an API key: set PARCEL_API_KEY or --api-key", c.Addr())
}

func isLoopback(host string) bool {
	if host == "" || host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// RequireServer fails when no file host is configured.
func (c *Config) RequireServer() error {
	if c.Server == "" {
		return fmt.Errorf("no server configured: set PARCEL_SERVER or --server")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

// getEnvSize accepts plain byte counts or sizes like "4KiB" and "8m".
func getEnvSize(key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := units.RAMInBytes(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
