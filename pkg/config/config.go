package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// EngineConfig holds every tunable of the game engine. Values come from the
// environment with sane defaults so a bare `go run .` starts a playable game.
type EngineConfig struct {
	StartingCash int // cash each player starts with, also the bankruptcy floor
	GoSalary     int // collected when passing Go
	JailFine     int // cost of paying out of jail
	MaxJailTurns int
	BoardSize    int

	AuctionRunTime time.Duration // initial countdown when an auction opens
	AntiSnipeGrace time.Duration // minimum time left after every accepted bid
	AuctionHardCap time.Duration // deadline never extends past open + cap

	TradeExpiry time.Duration

	LoanRateBase  float64 // unsecured loan rate before credit adjustment
	CDRateBase    float64
	HELOCRate     float64
	HELOCMaxRatio float64 // max HELOC principal as a share of property value

	PhaseLength      int     // full rounds an economic phase aims to last
	MarketEventProb  float64 // chance per round of a market event firing
	MarketEventTurns int     // rounds a market event modifier stays applied

	FreeParkingPayout bool // community fund pays out on the free parking space
}

func Default() EngineConfig {
	return EngineConfig{
		StartingCash:      1500,
		GoSalary:          200,
		JailFine:          50,
		MaxJailTurns:      3,
		BoardSize:         40,
		AuctionRunTime:    60 * time.Second,
		AntiSnipeGrace:    10 * time.Second,
		AuctionHardCap:    120 * time.Second,
		TradeExpiry:       2 * time.Minute,
		LoanRateBase:      0.10,
		CDRateBase:        0.04,
		HELOCRate:         0.07,
		HELOCMaxRatio:     0.80,
		PhaseLength:       5,
		MarketEventProb:   0.15,
		MarketEventTurns:  3,
		FreeParkingPayout: true,
	}
}

// FromEnv loads the default config and overrides anything set in the env.
func FromEnv() EngineConfig {
	cfg := Default()
	cfg.StartingCash = envIntDefault("GAME_STARTING_CASH", cfg.StartingCash)
	cfg.GoSalary = envIntDefault("GAME_GO_SALARY", cfg.GoSalary)
	cfg.JailFine = envIntDefault("GAME_JAIL_FINE", cfg.JailFine)
	cfg.AuctionRunTime = envDurationDefault("GAME_AUCTION_RUN_TIME", cfg.AuctionRunTime)
	cfg.AntiSnipeGrace = envDurationDefault("GAME_AUCTION_GRACE", cfg.AntiSnipeGrace)
	cfg.AuctionHardCap = envDurationDefault("GAME_AUCTION_HARD_CAP", cfg.AuctionHardCap)
	cfg.TradeExpiry = envDurationDefault("GAME_TRADE_EXPIRY", cfg.TradeExpiry)
	cfg.MarketEventProb = envFloatDefault("GAME_MARKET_EVENT_PROB", cfg.MarketEventProb)
	cfg.PhaseLength = envIntDefault("GAME_PHASE_LENGTH", cfg.PhaseLength)
	cfg.FreeParkingPayout = envBoolDefault("GAME_FREE_PARKING_PAYOUT", cfg.FreeParkingPayout)
	return cfg
}

func envIntDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatDefault(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
