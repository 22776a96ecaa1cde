package ops

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"engine/internal/schema"
	"engine/pkg/conn"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

const (
	EnvPostgresDSN  = "ENGINE_PG_DSN"
	EnvRedisAddr    = "ENGINE_REDIS_ADDR"
	EnvKafkaBrokers = "ENGINE_KAFKA_BROKERS"
	EnvSocketPath   = "ENGINE_SOCKET_PATH"
	EnvAdminAddr    = "ENGINE_ADMIN_ADDR"
)

const (
	defaultQueueSize       = 4096
	defaultAssetCacheTTLMs = 60_000
	defaultStatsIntervalMs = 60_000
	defaultDedupWindow     = 100_000
	defaultDedupTTLMs      = 24 * 60 * 60 * 1000
	defaultSocketPath      = "/tmp/engine.sock"
	defaultAuditQueueSize  = 4096
	defaultAuditTopic      = "cash-operations"
	defaultOrderWorkers    = 1
	defaultOrderQueueSize  = 1024
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Engine    EngineConfig     `json:"engine"`
	Dedup     DedupConfig      `json:"dedup"`
	Storage   StorageConfig    `json:"storage"`
	Assets    []schema.Asset   `json:"assets"`
	Ingress   IngressConfig    `json:"ingress"`
	Admin     AdminConfig      `json:"admin"`
	Audit     AuditConfig      `json:"audit"`
	Orders    OrdersConfig     `json:"orders"`
	Journal   JournalConfig    `json:"journal"`
	Redis     conn.RedisOption `json:"redis"`
	Profiling ProfilingConfig  `json:"profiling"`
}

// EngineConfig sizes the dispatch loop.
type EngineConfig struct {
	QueueSize       int   `json:"queueSize"`
	AssetCacheTTLMs int64 `json:"assetCacheTtlMs"`
	StatsIntervalMs int64 `json:"statsIntervalMs"`
}

// DedupConfig bounds the business id window.
type DedupConfig struct {
	Window     int   `json:"window"`
	RedisTTLMs int64 `json:"redisTtlMs"`
}

// StorageConfig selects the wallet backend.
type StorageConfig struct {
	Driver   string              `json:"driver"`
	Postgres conn.PostgresOption `json:"postgres"`
}

type IngressConfig struct {
	SocketPath string `json:"socketPath"`
}

type AdminConfig struct {
	Addr string `json:"addr"`
}

// AuditConfig selects where audit records go. Without brokers they are logged.
type AuditConfig struct {
	QueueSize    int      `json:"queueSize"`
	KafkaBrokers []string `json:"kafkaBrokers"`
	Topic        string   `json:"topic"`
}

type OrdersConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queueSize"`
}

// JournalConfig enables the input journal when Dir is set.
type JournalConfig struct {
	Dir string `json:"dir"`
}

type ProfilingConfig struct {
	PyroscopeAddr string `json:"pyroscopeAddr"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	QueueSize     int
	AssetCacheTTL time.Duration
	StatsInterval time.Duration
	DedupWindow   int
	DedupTTL      time.Duration
	Storage       StorageConfig
	Assets        []schema.Asset
	SocketPath    string
	AdminAddr     string
	Audit         AuditConfig
	Orders        OrdersConfig
	JournalDir    string
	Redis         conn.RedisOption
	PyroscopeAddr string
}

// LoadEnv loads .env style files into the process environment. Missing files
// are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a JSON config file, applies environment overrides and defaults,
// and validates the result. An empty path uses defaults only.
func Load(path string) (Loaded, error) {
	var cfg FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return Resolve(cfg)
}

// Resolve applies defaults and validates cfg.
func Resolve(cfg FileConfig) (Loaded, error) {
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return Loaded{}, err
	}
	return Loaded{
		QueueSize:     cfg.Engine.QueueSize,
		AssetCacheTTL: time.Duration(cfg.Engine.AssetCacheTTLMs) * time.Millisecond,
		StatsInterval: time.Duration(cfg.Engine.StatsIntervalMs) * time.Millisecond,
		DedupWindow:   cfg.Dedup.Window,
		DedupTTL:      time.Duration(cfg.Dedup.RedisTTLMs) * time.Millisecond,
		Storage:       cfg.Storage,
		Assets:        cfg.Assets,
		SocketPath:    cfg.Ingress.SocketPath,
		AdminAddr:     cfg.Admin.Addr,
		Audit:         cfg.Audit,
		Orders:        cfg.Orders,
		JournalDir:    cfg.Journal.Dir,
		Redis:         cfg.Redis,
		PyroscopeAddr: cfg.Profiling.PyroscopeAddr,
	}, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		cfg.Storage.Postgres.ConnString = v
		if cfg.Storage.Driver == "" {
			cfg.Storage.Driver = StoragePostgres
		}
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		cfg.Audit.KafkaBrokers = brokers
	}
	if v := os.Getenv(EnvSocketPath); v != "" {
		cfg.Ingress.SocketPath = v
	}
	if v := os.Getenv(EnvAdminAddr); v != "" {
		cfg.Admin.Addr = v
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Engine.QueueSize == 0 {
		cfg.Engine.QueueSize = defaultQueueSize
	}
	if cfg.Engine.AssetCacheTTLMs == 0 {
		cfg.Engine.AssetCacheTTLMs = defaultAssetCacheTTLMs
	}
	if cfg.Engine.StatsIntervalMs == 0 {
		cfg.Engine.StatsIntervalMs = defaultStatsIntervalMs
	}
	if cfg.Dedup.Window == 0 {
		cfg.Dedup.Window = defaultDedupWindow
	}
	if cfg.Dedup.RedisTTLMs == 0 {
		cfg.Dedup.RedisTTLMs = defaultDedupTTLMs
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageMemory
	}
	if cfg.Ingress.SocketPath == "" {
		cfg.Ingress.SocketPath = defaultSocketPath
	}
	if cfg.Audit.QueueSize == 0 {
		cfg.Audit.QueueSize = defaultAuditQueueSize
	}
	if cfg.Audit.Topic == "" {
		cfg.Audit.Topic = defaultAuditTopic
	}
	if cfg.Orders.Workers == 0 {
		cfg.Orders.Workers = defaultOrderWorkers
	}
	if cfg.Orders.QueueSize == 0 {
		cfg.Orders.QueueSize = defaultOrderQueueSize
	}
}

func validate(cfg FileConfig) error {
	if cfg.Engine.QueueSize < 0 {
		return fmt.Errorf("engine queueSize must be > 0")
	}
	if cfg.Engine.AssetCacheTTLMs < 0 || cfg.Engine.StatsIntervalMs < 0 {
		return fmt.Errorf("engine intervals must be >= 0")
	}
	if cfg.Dedup.Window < 0 || cfg.Dedup.RedisTTLMs < 0 {
		return fmt.Errorf("dedup window and ttl must be >= 0")
	}
	switch cfg.Storage.Driver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
	seen := make(map[string]struct{}, len(cfg.Assets))
	for _, a := range cfg.Assets {
		if a.ID == "" {
			return fmt.Errorf("asset id is empty")
		}
		if a.Accuracy < 0 {
			return fmt.Errorf("asset %s accuracy must be >= 0", a.ID)
		}
		if _, ok := seen[a.ID]; ok {
			return fmt.Errorf("duplicate asset: %s", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	if cfg.Audit.QueueSize < 0 {
		return fmt.Errorf("audit queueSize must be > 0")
	}
	if cfg.Orders.Workers < 0 || cfg.Orders.QueueSize < 0 {
		return fmt.Errorf("orders workers and queueSize must be > 0")
	}
	return nil
}
