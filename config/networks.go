package config

import (
	"math/big"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NetworkConfig holds per-network raffle defaults.
type NetworkConfig struct {
	Name             string
	ChainID          int64
	EntranceFee      *big.Int
	GasLane          common.Hash
	SubscriptionID   uint64
	CallbackGasLimit uint32
	Interval         time.Duration
}

// Ether is 10^18 of the smallest unit.
var Ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// DevSubscriptionFunding funds the local coordinator subscription on
// development networks.
var DevSubscriptionFunding = new(big.Int).Mul(big.NewInt(2), Ether)

var (
	centiEther = new(big.Int).Div(Ether, big.NewInt(100))
	gasLane    = common.HexToHash("0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c")
)

var networks = map[string]NetworkConfig{
	"sepolia": {
		Name:             "sepolia",
		ChainID:          11155111,
		EntranceFee:      centiEther,
		GasLane:          gasLane,
		CallbackGasLimit: 500_000,
		Interval:         30 * time.Second,
	},
	"hardhat": {
		Name:             "hardhat",
		ChainID:          31337,
		EntranceFee:      centiEther,
		GasLane:          gasLane,
		CallbackGasLimit: 500_000,
		Interval:         30 * time.Second,
	},
	"localhost": {
		Name:             "localhost",
		ChainID:          31337,
		EntranceFee:      centiEther,
		GasLane:          gasLane,
		CallbackGasLimit: 500_000,
		Interval:         30 * time.Second,
	},
}

// DevelopmentNetworks use the in-process randomness coordinator.
var DevelopmentNetworks = []string{"hardhat", "localhost"}

// LookupNetwork returns a copy of the defaults for name.
func LookupNetwork(name string) (NetworkConfig, bool) {
	n, ok := networks[name]
	if !ok {
		return NetworkConfig{}, false
	}
	n.EntranceFee = new(big.Int).Set(n.EntranceFee)
	return n, true
}

// IsDevelopment reports whether name is a development network.
func IsDevelopment(name string) bool {
	return slices.Contains(DevelopmentNetworks, name)
}
