package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config struct to hold the configuration settings
type Config struct {
	Postgres      PostgresConfig      `yaml:"postgres"`
	Storage       StorageConfig       `yaml:"storage"`
	NATS          NATSConfig          `yaml:"nats"`
	HTTP          HTTPConfig          `yaml:"http"`
	Observability ObservabilityConfig `yaml:"observability"`
	Raffle        RaffleConfig        `yaml:"raffle"`
	VRF           VRFConfig           `yaml:"vrf"`
	Keeper        KeeperConfig        `yaml:"keeper"`
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_URL"`
}

// StorageConfig selects the database driver.
type StorageConfig struct {
	Driver    string `yaml:"driver" env:"STORAGE_DRIVER"` // postgres|sqlite
	SQLiteDSN string `yaml:"sqlite_dsn" env:"SQLITE_DSN"`
}

// NATSConfig holds NATS configuration. An empty URL runs the bus in process.
type NATSConfig struct {
	URL           string `yaml:"url" env:"NATS_URL"`
	StreamName    string `yaml:"stream_name" env:"NATS_STREAM"`
	DurablePrefix string `yaml:"durable_prefix" env:"NATS_DURABLE_PREFIX"`
}

// HTTPConfig holds the public API settings. An empty address disables it.
type HTTPConfig struct {
	Address        string   `yaml:"address" env:"HTTP_ADDRESS"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" envSeparator:","`
	RateLimit      float64  `yaml:"rate_limit" env:"HTTP_RATE_LIMIT"`
	RateBurst      int      `yaml:"rate_burst" env:"HTTP_RATE_BURST"`
}

// ObservabilityConfig holds configuration for observability components
type ObservabilityConfig struct {
	ServiceName     string  `yaml:"service_name" env:"SERVICE_NAME"`
	Version         string  `yaml:"version" env:"SERVICE_VERSION"`
	Environment     string  `yaml:"environment" env:"ENV"`
	MetricsAddress  string  `yaml:"metrics_address" env:"METRICS_ADDRESS"`
	OTLPEndpoint    string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	TraceSampleRate float64 `yaml:"trace_sample_rate" env:"TRACE_SAMPLE_RATE"`
}

// RaffleConfig holds the engine settings. Empty values take the network defaults.
type RaffleConfig struct {
	Network              string        `yaml:"network" env:"RAFFLE_NETWORK"`
	EntranceFee          string        `yaml:"entrance_fee" env:"RAFFLE_ENTRANCE_FEE"`
	Interval             time.Duration `yaml:"interval" env:"RAFFLE_INTERVAL"`
	KeyHash              string        `yaml:"key_hash" env:"RAFFLE_KEY_HASH"`
	SubscriptionID       uint64        `yaml:"subscription_id" env:"RAFFLE_SUBSCRIPTION_ID"`
	RequestConfirmations uint16        `yaml:"request_confirmations" env:"RAFFLE_REQUEST_CONFIRMATIONS"`
	CallbackGasLimit     uint32        `yaml:"callback_gas_limit" env:"RAFFLE_CALLBACK_GAS_LIMIT"`
	NumWords             uint32        `yaml:"num_words" env:"RAFFLE_NUM_WORDS"`
	ConsumerAddress      string        `yaml:"consumer_address" env:"RAFFLE_CONSUMER_ADDRESS"`
	PayoutLimit          string        `yaml:"payout_limit" env:"RAFFLE_PAYOUT_LIMIT"`
}

// VRFConfig holds the randomness source settings.
type VRFConfig struct {
	// Mode is local (in-process coordinator) or external (deliveries over the bus).
	Mode             string        `yaml:"mode" env:"VRF_MODE"`
	FulfillmentDelay time.Duration `yaml:"fulfillment_delay" env:"VRF_FULFILLMENT_DELAY"`
	FulfillmentFee   string        `yaml:"fulfillment_fee" env:"VRF_FULFILLMENT_FEE"`
	Seed             string        `yaml:"seed" env:"VRF_SEED"`
}

// KeeperConfig holds the upkeep schedule.
type KeeperConfig struct {
	// Mode is river, ticker or off. Empty picks river on postgres, ticker on sqlite.
	Mode         string        `yaml:"mode" env:"KEEPER_MODE"`
	PollInterval time.Duration `yaml:"poll_interval" env:"KEEPER_POLL_INTERVAL"`
}

const (
	VRFModeLocal    = "local"
	VRFModeExternal = "external"

	KeeperModeRiver  = "river"
	KeeperModeTicker = "ticker"
	KeeperModeOff    = "off"
)

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Driver: "sqlite"},
		NATS:    NATSConfig{StreamName: "raffle", DurablePrefix: "raffle"},
		HTTP:    HTTPConfig{RateLimit: 5, RateBurst: 10},
		Observability: ObservabilityConfig{
			ServiceName:     "raffle-bot",
			Version:         "dev",
			TraceSampleRate: 0.1,
		},
		Raffle: RaffleConfig{
			Network:              "hardhat",
			RequestConfirmations: 3,
			NumWords:             1,
			ConsumerAddress:      "0x000000000000000000000000000000000000a11e",
		},
		VRF:    VRFConfig{FulfillmentDelay: 2 * time.Second, FulfillmentFee: "0"},
		Keeper: KeeperConfig{PollInterval: 10 * time.Second},
	}
}

// LoadConfig reads filename over the defaults, then applies environment
// overrides. A missing file is not an error.
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve fills network defaults and checks the result.
func (c *Config) resolve() error {
	network, ok := LookupNetwork(c.Raffle.Network)
	if !ok {
		return fmt.Errorf("unknown network %q", c.Raffle.Network)
	}
	if c.Raffle.EntranceFee == "" {
		c.Raffle.EntranceFee = network.EntranceFee.String()
	}
	if c.Raffle.Interval == 0 {
		c.Raffle.Interval = network.Interval
	}
	if c.Raffle.KeyHash == "" {
		c.Raffle.KeyHash = network.GasLane.Hex()
	}
	if c.Raffle.SubscriptionID == 0 {
		c.Raffle.SubscriptionID = network.SubscriptionID
	}
	if c.Raffle.CallbackGasLimit == 0 {
		c.Raffle.CallbackGasLimit = network.CallbackGasLimit
	}
	if c.VRF.Mode == "" {
		c.VRF.Mode = VRFModeExternal
		if IsDevelopment(network.Name) {
			c.VRF.Mode = VRFModeLocal
		}
	}

	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Keeper.Mode == "" {
		c.Keeper.Mode = KeeperModeTicker
		if c.Storage.Driver == "postgres" {
			c.Keeper.Mode = KeeperModeRiver
		}
	}

	return c.Validate()
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required with the postgres driver"))
		}
	case "sqlite":
		if c.Keeper.Mode == KeeperModeRiver {
			errs = append(errs, errors.New("keeper.mode river needs the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver))
	}
	if _, err := parseAmount("raffle.entrance_fee", c.Raffle.EntranceFee); err != nil {
		errs = append(errs, err)
	}
	if c.Raffle.Interval <= 0 {
		errs = append(errs, errors.New("raffle.interval must be positive"))
	}
	if c.Raffle.KeyHash != "" && len(common.FromHex(c.Raffle.KeyHash)) != common.HashLength {
		errs = append(errs, fmt.Errorf("raffle.key_hash %q is not a 32-byte hex string", c.Raffle.KeyHash))
	}
	if !common.IsHexAddress(c.Raffle.ConsumerAddress) {
		errs = append(errs, fmt.Errorf("raffle.consumer_address %q is not a hex address", c.Raffle.ConsumerAddress))
	}
	if c.Raffle.PayoutLimit != "" {
		if _, err := parseAmount("raffle.payout_limit", c.Raffle.PayoutLimit); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.VRF.Mode {
	case VRFModeLocal:
		if _, err := parseAmount("vrf.fulfillment_fee", c.VRF.FulfillmentFee); err != nil {
			errs = append(errs, err)
		}
	case VRFModeExternal:
	default:
		errs = append(errs, fmt.Errorf("unsupported vrf.mode %q", c.VRF.Mode))
	}
	switch c.Keeper.Mode {
	case KeeperModeRiver, KeeperModeTicker, KeeperModeOff:
	default:
		errs = append(errs, fmt.Errorf("unsupported keeper.mode %q", c.Keeper.Mode))
	}
	return errors.Join(errs...)
}

// EntranceFeeAmount returns the parsed entrance fee.
func (c *Config) EntranceFeeAmount() *big.Int {
	v, _ := parseAmount("", c.Raffle.EntranceFee)
	return v
}

// PayoutLimitAmount returns the parsed payout ceiling, or nil for no limit.
func (c *Config) PayoutLimitAmount() *big.Int {
	if c.Raffle.PayoutLimit == "" {
		return nil
	}
	v, _ := parseAmount("", c.Raffle.PayoutLimit)
	return v
}

// FulfillmentFeeAmount returns the parsed local coordinator fee.
func (c *Config) FulfillmentFeeAmount() *big.Int {
	v, _ := parseAmount("", c.VRF.FulfillmentFee)
	if v == nil {
		return new(big.Int)
	}
	return v
}

// RandomnessParams returns the request parameters forwarded to the coordinator.
func (c *Config) RandomnessParams() raffletypes.RandomnessParams {
	return raffletypes.RandomnessParams{
		KeyHash:              common.HexToHash(c.Raffle.KeyHash),
		SubscriptionID:       c.Raffle.SubscriptionID,
		RequestConfirmations: c.Raffle.RequestConfirmations,
		CallbackGasLimit:     c.Raffle.CallbackGasLimit,
		NumWords:             c.Raffle.NumWords,
	}
}

// Consumer returns the address the raffle bills randomness requests as.
func (c *Config) Consumer() common.Address {
	return common.HexToAddress(c.Raffle.ConsumerAddress)
}

// DatabaseDSN returns the DSN for the configured driver.
func (c *Config) DatabaseDSN() string {
	if c.Storage.Driver == "sqlite" {
		return c.Storage.SQLiteDSN
	}
	return c.Postgres.DSN
}

func parseAmount(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s %q is not a non-negative base-10 integer", field, s)
	}
	return v, nil
}
