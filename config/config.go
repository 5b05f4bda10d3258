// Package config turns the environment-variable table in spec.md §6 into a
// typed Config. It follows the teacher's helpers.DecodeFile idiom — one
// loader function, every failure wrapped with context — generalized from
// JSON-file decoding to env-var decoding.
package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/TempyEmail/burngate/domainset"
	"github.com/TempyEmail/burngate/oracle"
)

// Config is the fully-resolved, validated configuration for one burngate
// process.
type Config struct {
	ListenAddr      string
	BackendSMTP     string
	AcceptedDomains domainset.Set
	ServerName      string
	MaxMessageSize  int64
	ConnTimeoutSecs int
	MetricsInterval int

	Redis RedisConfig

	TLSCertPath string
	TLSKeyPath  string
	TLSAvailable bool
	TLSCert     *tls.Certificate
}

// RedisConfig holds every REDIS_* variable from spec.md §6.
type RedisConfig struct {
	URL         string
	Host        string
	Port        string
	Username    string
	Password    string
	KeyPattern  string
	SetName     string
	CheckMode   oracle.Mode
}

// Load reads and validates every variable in spec.md §6's table, applying
// the stated defaults. ACCEPTED_DOMAINS is required; everything else has a
// usable default.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      getenv("LISTEN_ADDR", "0.0.0.0:25"),
		BackendSMTP:     getenv("BACKEND_SMTP", "127.0.0.1:2525"),
		ServerName:      getenv("SERVER_NAME", "burngate"),
		TLSCertPath:     os.Getenv("TLS_CERT_PATH"),
		TLSKeyPath:      os.Getenv("TLS_KEY_PATH"),
	}

	domainsRaw := os.Getenv("ACCEPTED_DOMAINS")
	if strings.TrimSpace(domainsRaw) == "" {
		return nil, fmt.Errorf("config: ACCEPTED_DOMAINS is required")
	}
	cfg.AcceptedDomains = domainset.New(strings.Split(domainsRaw, ","))

	maxSize, err := getenvInt64("MAX_MESSAGE_SIZE", 10485760)
	if err != nil {
		return nil, err
	}
	cfg.MaxMessageSize = maxSize

	connTimeout, err := getenvInt("CONNECTION_TIMEOUT", 300)
	if err != nil {
		return nil, err
	}
	cfg.ConnTimeoutSecs = connTimeout

	metricsInterval, err := getenvInt("METRICS_INTERVAL", 60)
	if err != nil {
		return nil, err
	}
	cfg.MetricsInterval = metricsInterval

	mode, err := oracle.ParseMode(getenv("REDIS_CHECK_MODE", "both"))
	if err != nil {
		return nil, err
	}

	cfg.Redis = RedisConfig{
		URL:        os.Getenv("REDIS_URL"),
		Host:       os.Getenv("REDIS_HOST"),
		Port:       os.Getenv("REDIS_PORT"),
		Username:   os.Getenv("REDIS_USERNAME"),
		Password:   os.Getenv("REDIS_PASSWORD"),
		KeyPattern: lookupenv("REDIS_KEY_PATTERN", "mb:{address}"),
		SetName:    lookupenv("REDIS_SET_NAME", "addresses"),
		CheckMode:  mode,
	}

	if cfg.TLSCertPath != "" && cfg.TLSKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertPath, cfg.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("config: could not load TLS keypair: %w", err)
		}
		cfg.TLSCert = &cert
		cfg.TLSAvailable = true
	}

	return cfg, nil
}

func getenv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// lookupenv is like getenv but keeps a variable that is set to the empty
// string, so an empty REDIS_KEY_PATTERN or REDIS_SET_NAME disables that tier.
func lookupenv(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func getenvInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return n, nil
}

func getenvInt64(name string, def int64) (int64, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return n, nil
}
