package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database    DatabaseConfig
	JWT         JWTConfig
	Server      ServerConfig
	CORS        CORSConfig
	Relay       RelayConfig
	Ledger      LedgerConfig
	WaitingRoom WaitingRoomConfig
	Telemetry   TelemetryConfig
	Bootstrap   BootstrapConfig
}

// DatabaseConfig holds the store connection target. URI wins over the
// discrete MySQL fields when set.
type DatabaseConfig struct {
	URI      string
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

type JWTConfig struct {
	AccessSecret      string
	AccessTokenExpiry time.Duration
}

type ServerConfig struct {
	Port     string
	GinMode  string
	Env      string
	LogLevel string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// RelayConfig configures the waiting-room notification relay
type RelayConfig struct {
	Origin   string
	RedisURL string
	Channel  string
	Buffer   int
}

// LedgerConfig selects and configures the external ledger adapter
type LedgerConfig struct {
	Driver          string
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	GasLimit        uint64
	ChainPath       string
	Timeout         time.Duration
}

type WaitingRoomConfig struct {
	DeskName          string
	RefreshInterval   time.Duration
	ReconcileInterval time.Duration
}

type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

type BootstrapConfig struct {
	AdminUsername string
	AdminPassword string
}

const (
	LedgerDriverChain    = "chain"
	LedgerDriverEthereum = "ethereum"
)

func LoadConfig() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			URI:      getEnv("STORE_URI", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "hospital_waiting_room"),
		},
		JWT: JWTConfig{
			AccessSecret:      getEnv("JWT_ACCESS_SECRET", "your-access-secret-key"),
			AccessTokenExpiry: parseDuration(getEnv("ACCESS_TOKEN_EXPIRY", "12h"), 12*time.Hour),
		},
		Server: ServerConfig{
			Port:     getEnv("PORT", "3000"),
			GinMode:  getEnv("GIN_MODE", "debug"),
			Env:      getEnv("ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		},
		Relay: RelayConfig{
			Origin:   getEnv("RELAY_ORIGIN", "http://localhost:5173"),
			RedisURL: getEnv("REDIS_URL", ""),
			Channel:  getEnv("RELAY_CHANNEL", "waiting-room:events"),
			Buffer:   parseInt(getEnv("RELAY_BUFFER", "64"), 64),
		},
		Ledger: LedgerConfig{
			Driver:          strings.ToLower(getEnv("LEDGER_DRIVER", LedgerDriverChain)),
			RPCURL:          getEnv("LEDGER_RPC_URL", ""),
			ContractAddress: getEnv("LEDGER_CONTRACT_ADDRESS", ""),
			PrivateKey:      getEnv("LEDGER_PRIVATE_KEY", ""),
			GasLimit:        uint64(parseInt(getEnv("LEDGER_GAS_LIMIT", "300000"), 300000)),
			ChainPath:       getEnv("LEDGER_CHAIN_PATH", "./data/ledger"),
			Timeout:         parseDuration(getEnv("LEDGER_TIMEOUT", "30s"), 30*time.Second),
		},
		WaitingRoom: WaitingRoomConfig{
			DeskName:          getEnv("DESK_NAME", "OPD-01"),
			RefreshInterval:   parseDuration(getEnv("WAITING_ROOM_REFRESH", "5m"), 5*time.Minute),
			ReconcileInterval: parseDuration(getEnv("RECONCILE_INTERVAL", "1m"), time.Minute),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "hospital-waiting-room"),
		},
		Bootstrap: BootstrapConfig{
			AdminUsername: getEnv("ADMIN_USERNAME", ""),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	return config
}

// Validate checks combinations LoadConfig cannot default its way out of
func (c *Config) Validate() error {
	switch c.Ledger.Driver {
	case LedgerDriverChain:
		if c.Ledger.ChainPath == "" {
			return errors.New("LEDGER_CHAIN_PATH is required for the chain ledger driver")
		}
	case LedgerDriverEthereum:
		if c.Ledger.RPCURL == "" {
			return errors.New("LEDGER_RPC_URL is required for the ethereum ledger driver")
		}
		if c.Ledger.ContractAddress == "" {
			return errors.New("LEDGER_CONTRACT_ADDRESS is required for the ethereum ledger driver")
		}
		if c.Ledger.PrivateKey == "" {
			return errors.New("LEDGER_PRIVATE_KEY is required for the ethereum ledger driver")
		}
	default:
		return fmt.Errorf("LEDGER_DRIVER must be %q or %q, got %q", LedgerDriverChain, LedgerDriverEthereum, c.Ledger.Driver)
	}

	if c.Relay.Buffer <= 0 {
		return errors.New("RELAY_BUFFER must be positive")
	}
	if c.Ledger.Timeout <= 0 {
		return errors.New("LEDGER_TIMEOUT must be positive")
	}
	return nil
}

// IsDev reports whether the server runs in development mode
func (c *Config) IsDev() bool {
	return c.Server.Env == "development"
}

// RelayOrigins returns the origins allowed to open a relay subscription
func (c *Config) RelayOrigins() []string {
	origins := append([]string{}, c.CORS.AllowedOrigins...)
	if c.Relay.Origin == "" {
		return origins
	}
	for _, o := range origins {
		if o == c.Relay.Origin {
			return origins
		}
	}
	return append(origins, c.Relay.Origin)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		fmt.Printf("Warning: Invalid duration format '%s', using default\n", s)
		return fallback
	}
	return duration
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		fmt.Printf("Warning: Invalid integer '%s', using default\n", s)
		return fallback
	}
	return n
}

func parseOrigins(s string) []string {
	origins := []string{}
	for _, origin := range strings.Split(s, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
