package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/anthanhphan/gosdk/conflux"
	"github.com/anthanhphan/gosdk/logger"
)

const (
	StorageEngineForgetful = "forgetful"
	StorageEngineTag       = "tag"

	StateBackendNone  = "none"
	StateBackendFile  = "file"
	StateBackendRedis = "redis"
)

// Config holds DHT node configuration
type Config struct {
	Server ServerConfig  `json:"server" yaml:"server"`
	DHT    DHTConfig     `json:"dht" yaml:"dht"`
	Gossip GossipConfig  `json:"gossip" yaml:"gossip"`
	HTTP   HTTPConfig    `json:"http" yaml:"http"`
	State  StateConfig   `json:"state" yaml:"state"`
	Logger logger.Config `json:"logger" yaml:"logger"`
}

type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	// NodeID seeds the node id. Empty means a saved id, or a random one.
	NodeID string `json:"node_id" yaml:"node_id"`
}

type DHTConfig struct {
	KSize            int      `json:"ksize" yaml:"ksize"`
	Alpha            int      `json:"alpha" yaml:"alpha"`
	RPCTimeoutMS     int      `json:"rpc_timeout_ms" yaml:"rpc_timeout_ms"`
	RefreshIntervalS int      `json:"refresh_interval_s" yaml:"refresh_interval_s"`
	RepublishAgeS    int      `json:"republish_age_s" yaml:"republish_age_s"`
	TTLS             int      `json:"ttl_s" yaml:"ttl_s"`
	StorageEngine    string   `json:"storage_engine" yaml:"storage_engine"` // "forgetful", "tag"
	MaxEntries       int      `json:"max_entries" yaml:"max_entries"`
	HandlerWorkers   int      `json:"handler_workers" yaml:"handler_workers"`
	Bootstrap        []string `json:"bootstrap" yaml:"bootstrap"`
}

type GossipConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Port    int      `json:"port" yaml:"port"`
	Seeds   []string `json:"seeds" yaml:"seeds"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StateConfig struct {
	Backend       string      `json:"backend" yaml:"backend"` // "none", "file", "redis"
	Path          string      `json:"path" yaml:"path"`
	SaveIntervalS int         `json:"save_interval_s" yaml:"save_interval_s"`
	Redis         RedisConfig `json:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Key      string `json:"key" yaml:"key"`
}

// RPCTimeout returns the per call timeout.
func (c DHTConfig) RPCTimeout() time.Duration {
	return time.Duration(c.RPCTimeoutMS) * time.Millisecond
}

// RefreshInterval returns the refresh period.
func (c DHTConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalS) * time.Second
}

// RepublishAge returns the age after which local records are stored again.
func (c DHTConfig) RepublishAge() time.Duration {
	return time.Duration(c.RepublishAgeS) * time.Second
}

// TTL returns how long a stored record lives without renewal.
func (c DHTConfig) TTL() time.Duration {
	return time.Duration(c.TTLS) * time.Second
}

// SaveInterval returns the snapshot period.
func (c StateConfig) SaveInterval() time.Duration {
	return time.Duration(c.SaveIntervalS) * time.Second
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8468,
		},
		DHT: DHTConfig{
			KSize:            20,
			Alpha:            3,
			RPCTimeoutMS:     5000,
			RefreshIntervalS: 3600,
			RepublishAgeS:    3600,
			TTLS:             604800, // 1 week
			StorageEngine:    StorageEngineForgetful,
			MaxEntries:       1 << 20,
			HandlerWorkers:   16,
		},
		Gossip: GossipConfig{
			Port: 7946,
		},
		HTTP: HTTPConfig{
			Addr: ":8090",
		},
		State: StateConfig{
			Backend:       StateBackendNone,
			Path:          "./data/node.state",
			SaveIntervalS: 600,
			Redis: RedisConfig{
				Addr: "localhost:6379",
				Key:  "kademlia:state",
			},
		},
		Logger: logger.Config{
			LogLevel:    logger.LevelInfo,
			LogEncoding: logger.EncodingJSON,
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	configPath := path
	if configPath == "" {
		env := os.Getenv("ENV")
		if env == "" {
			env = "local"
		}
		configPath = filepath.Join("internal", "node", "config", env+".yaml")
	}

	cfg := DefaultConfig()

	parsedCfg, err := conflux.ParseConfig(configPath, cfg)
	if err != nil {
		log.Printf("Config file not found or failed to parse, using defaults if file not specified. Path: %s, Error: %v", configPath, err)
		if path != "" {
			return nil, err
		}
		return cfg, nil
	}

	return parsedCfg, nil
}
