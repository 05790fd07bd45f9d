package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Node struct {
	DataDir  string // Pebble directory; empty runs without a journal
	WALFile  string // optional JSON-lines audit log of every change set
	LogFile  string
	LogLevel string
}

type Exchange struct {
	Admin        common.Address
	QuoteTicker  string
	QuoteAddress common.Address
	// TradeHistory is the number of trades kept in memory (and reloaded) per ticker.
	TradeHistory int
}

type API struct {
	Addr        string
	CORSOrigins []string
}

type Kafka struct {
	Brokers []string // empty disables the publisher
	Topic   string
}

type Config struct {
	Node     Node
	Exchange Exchange
	API      API
	Kafka    Kafka
}

func Default() Config {
	return Config{
		Node: Node{
			DataDir:  "data/pebble",
			LogFile:  "data/node.log",
			LogLevel: "info",
		},
		Exchange: Exchange{
			// Ganache's first default account, the deployer in the devnet migration
			Admin:        common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"),
			QuoteTicker:  "DAI",
			QuoteAddress: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
			TradeHistory: 1000,
		},
		API: API{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Kafka: Kafka{
			Topic: "dex.events",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if v, ok := os.LookupEnv("DATA_DIR"); ok {
		cfg.Node.DataDir = v
	}
	cfg.Node.WALFile = getEnv("WAL_FILE", cfg.Node.WALFile)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	cfg.Exchange.QuoteTicker = getEnv("QUOTE_TICKER", cfg.Exchange.QuoteTicker)
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	if v := os.Getenv("ADMIN_ADDRESS"); v != "" {
		if !common.IsHexAddress(v) {
			return cfg, fmt.Errorf("ADMIN_ADDRESS: invalid address %q", v)
		}
		cfg.Exchange.Admin = common.HexToAddress(v)
	}
	if v := os.Getenv("QUOTE_ADDRESS"); v != "" {
		if !common.IsHexAddress(v) {
			return cfg, fmt.Errorf("QUOTE_ADDRESS: invalid address %q", v)
		}
		cfg.Exchange.QuoteAddress = common.HexToAddress(v)
	}
	if v := os.Getenv("TRADE_HISTORY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("TRADE_HISTORY: want a positive integer, got %q", v)
		}
		cfg.Exchange.TradeHistory = n
	}

	// Comma-separated lists, e.g. "kafka-1:9092,kafka-2:9092"
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.API.CORSOrigins = splitList(v)
	}

	return cfg, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
