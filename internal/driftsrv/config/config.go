package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ConfigParam is the externally tunable surface of the drift service.
// Every knob that changes pipeline behavior lives here so it can be
// adjusted without redeploying logic.
type ConfigParam struct {
	ServerPort string `toml:"server_port"`
	HandleCORS bool   `toml:"handle_cors"`

	SingleUserMode  bool   `toml:"single_user_mode"`
	DefaultTenantID string `toml:"default_tenant_id"`

	// Drift classification
	AutoRepairThreshold  float64 `toml:"auto_repair_confidence_threshold"`
	SuggestionServiceURL string  `toml:"suggestion_service_url"`
	SuggestionWeight     float64 `toml:"suggestion_weight"`

	// Repair execution
	RepairTimeoutSeconds int `toml:"repair_timeout_seconds"`

	// Canonical event bridge
	BatchChunkSize        int    `toml:"batch_chunk_size"`
	MaxSamplesPerTable    int    `toml:"max_schema_samples_per_table"`
	StreamMaxLength       int64  `toml:"stream_max_length"`
	IdempotencyTTLSeconds int    `toml:"idempotency_ttl_seconds"`
	StreamNamespace       string `toml:"stream_namespace"`
	ConsumerNamespace     string `toml:"consumer_namespace"`

	// Stores
	CompressSchemaDocs bool         `toml:"compress_schema_docs"`
	Postgres           PostgresCfg  `toml:"postgres"`
	Redis              RedisCfg     `toml:"redis"`
	Materialize        Materializer `toml:"materializer"`
}

type PostgresCfg struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	DBName   string `toml:"dbname"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"sslmode"`
}

type RedisCfg struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type Materializer struct {
	// NaturalKeyField is the record field used as the upsert key in the
	// destination store. Replays dedupe against this, not the batch id.
	NaturalKeyField string `toml:"natural_key_field"`
	ConsumerGroup   string `toml:"consumer_group"`
}

var cfg *ConfigParam

func Config() *ConfigParam {
	return cfg
}

func LoadConfig(filename string) error {
	if filename == "" {
		cfg = defaultConfig()
		return nil
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}
	cp := defaultConfig()
	if _, err := toml.Decode(string(content), cp); err != nil {
		return fmt.Errorf("error parsing config file: %v", err)
	}
	cfg = cp
	return nil
}

func defaultConfig() *ConfigParam {
	return &ConfigParam{
		ServerPort:            "8196",
		HandleCORS:            true,
		SingleUserMode:        true,
		DefaultTenantID:       "TDEFLT",
		AutoRepairThreshold:   0.85,
		SuggestionWeight:      0.4,
		RepairTimeoutSeconds:  120,
		BatchChunkSize:        500,
		MaxSamplesPerTable:    10,
		StreamMaxLength:       10000,
		IdempotencyTTLSeconds: 86400,
		StreamNamespace:       "canonical",
		ConsumerNamespace:     "materializer",
		CompressSchemaDocs:    true,
		Postgres: PostgresCfg{
			Host:    "localhost",
			Port:    5432,
			DBName:  "driftline",
			User:    "drift_api",
			SSLMode: "disable",
		},
		Redis: RedisCfg{
			Addr: "localhost:6379",
		},
		Materialize: Materializer{
			NaturalKeyField: "id",
			ConsumerGroup:   "materializer",
		},
	}
}

func init() {
	if err := LoadConfig(""); err != nil {
		panic(err)
	}
}
