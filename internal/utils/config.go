package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/moondesk/ingest-worker/internal/constants"
	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/moondesk/ingest-worker/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		Broker            string        `yaml:"broker"`             // MQTT broker address, e.g. tcp://localhost:1883
		ClientID          string        `yaml:"client_id"`          // Client ID; a UUID is appended when clean_session is true
		Username          string        `yaml:"username"`           // Optional broker username
		Password          string        `yaml:"password"`           // Optional broker password
		Namespace         string        `yaml:"namespace"`          // First topic segment
		Organizations     []string      `yaml:"organizations"`      // Organizations to subscribe to; empty means all
		QOS               int           `yaml:"qos"`                // Subscription QoS, 1 or 2
		CleanSession      bool          `yaml:"clean_session"`      // Start without broker-side session state
		ConnectTimeout    time.Duration `yaml:"connect_timeout"`    // Initial connect timeout
		ReconnectInterval time.Duration `yaml:"reconnect_interval"` // Max delay between reconnect attempts
		DisconnectQuiesce uint          `yaml:"disconnect_quiesce"` // Milliseconds to flush in-flight work on disconnect
	} `yaml:"mqtt"`

	Ingestion struct {
		Workers                  int           `yaml:"workers"`                    // Concurrent message handlers
		QueueSize                int           `yaml:"queue_size"`                 // Pending messages before the subscriber blocks
		ThresholdRefreshInterval time.Duration `yaml:"threshold_refresh_interval"` // Full threshold cache refresh period
	} `yaml:"ingestion"`

	Storage struct {
		Driver   string `yaml:"driver"`    // postgres or memory
		DSN      string `yaml:"dsn"`       // Postgres connection string
		MaxConns int32  `yaml:"max_conns"` // Pool size
		SeedFile string `yaml:"seed_file"` // JSON sensor list loaded into the memory driver
	} `yaml:"storage"`

	Broadcast struct {
		Driver          string        `yaml:"driver"`           // websocket, redis or none
		URL             string        `yaml:"url"`              // ws:// URL of the API, or redis address
		Token           string        `yaml:"token"`            // Internal service token presented to the API
		ChannelPrefix   string        `yaml:"channel_prefix"`   // Redis channel prefix
		ConnectAttempts int           `yaml:"connect_attempts"` // Startup connect attempts
		ConnectDelay    time.Duration `yaml:"connect_delay"`    // Delay between connect attempts
		WriteTimeout    time.Duration `yaml:"write_timeout"`    // Per-event write deadline
	} `yaml:"broadcast"`

	Status struct {
		Enabled  bool                 `yaml:"enabled"`  // Publish worker status reports
		Interval time.Duration        `yaml:"interval"` // Report period
		QOS      int                  `yaml:"qos"`      // Report QoS
		Metrics  models.MetricsConfig `yaml:"metrics"`  // Process health collectors to include
	} `yaml:"status"`

	Log struct {
		Level      string `yaml:"level"`        // zerolog level name
		Format     string `yaml:"format"`       // json or console
		File       string `yaml:"file"`         // Optional rotating log file
		MaxSizeMB  int    `yaml:"max_size_mb"`  // Rotate after this size
		MaxBackups int    `yaml:"max_backups"`  // Rotated files to keep
		MaxAgeDays int    `yaml:"max_age_days"` // Days to keep rotated files
	} `yaml:"log"`
}

var (
	storageDrivers   = SliceToSet([]string{"postgres", "memory"})
	broadcastDrivers = SliceToSet([]string{"websocket", "redis", "none"})
)

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	var c Config
	c.MQTT.Broker = "tcp://localhost:1883"
	c.MQTT.ClientID = "moondesk-mqtt-worker"
	c.MQTT.Namespace = constants.DefaultNamespace
	c.MQTT.QOS = int(constants.QoSAtLeastOnce)
	c.MQTT.ConnectTimeout = constants.DefaultConnectTimeout
	c.MQTT.ReconnectInterval = constants.DefaultReconnectInterval
	c.MQTT.DisconnectQuiesce = constants.DefaultDisconnectQuiesce
	c.Ingestion.Workers = constants.DefaultWorkers
	c.Ingestion.QueueSize = constants.DefaultQueueSize
	c.Ingestion.ThresholdRefreshInterval = constants.DefaultThresholdRefresh
	c.Storage.Driver = "postgres"
	c.Storage.MaxConns = constants.DefaultStorePoolConnections
	c.Broadcast.Driver = "websocket"
	c.Broadcast.URL = "ws://localhost:3001/internal/worker"
	c.Broadcast.ChannelPrefix = constants.DefaultRedisChannelPrefix
	c.Broadcast.ConnectAttempts = constants.DefaultBroadcastAttempts
	c.Broadcast.ConnectDelay = constants.DefaultBroadcastDelay
	c.Broadcast.WriteTimeout = constants.DefaultBroadcastWriteWait
	c.Status.Enabled = true
	c.Status.Interval = constants.DefaultStatusInterval
	c.Status.Metrics = models.MetricsConfig{MonitorCPU: true, MonitorMemory: true, MonitorGoroutines: true, MonitorProcess: true}
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 5
	c.Log.MaxAgeDays = 14
	return &c
}

// LoadConfig loads the YAML configuration from filename on top of the defaults,
// then applies .env and environment overrides. A missing file is not an error.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()

	if filename != "" {
		exists, err := fileClient.IsFileExists(filename)
		if err != nil {
			return nil, fmt.Errorf("stat config %s: %w", filename, err)
		}
		if exists {
			if err := fileClient.ReadYamlFile(filename, config); err != nil {
				return nil, fmt.Errorf("read config %s: %w", filename, err)
			}
		}
	}

	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	config.MQTT.Organizations = Dedupe(config.MQTT.Organizations)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString("MQTT_BROKER", &c.MQTT.Broker)
	setString("MQTT_CLIENT_ID", &c.MQTT.ClientID)
	setString("MQTT_USERNAME", &c.MQTT.Username)
	setString("MQTT_PASSWORD", &c.MQTT.Password)
	setString("MQTT_NAMESPACE", &c.MQTT.Namespace)
	setString("DATABASE_URL", &c.Storage.DSN)
	setString("STORAGE_DRIVER", &c.Storage.Driver)
	setString("BROADCAST_DRIVER", &c.Broadcast.Driver)
	setString("API_URL", &c.Broadcast.URL)
	setString("INTERNAL_SERVICE_TOKEN", &c.Broadcast.Token)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)
	setString("LOG_FILE", &c.Log.File)

	if v, ok := os.LookupEnv("REDIS_ADDR"); ok && c.Broadcast.Driver == "redis" {
		c.Broadcast.URL = v
	}
	if v, ok := os.LookupEnv("MQTT_ORGANIZATIONS"); ok {
		c.MQTT.Organizations = SplitCSV(v)
	}
	if v, ok := os.LookupEnv("INGESTION_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INGESTION_WORKERS: %w", err)
		}
		c.Ingestion.Workers = n
	}
	if v, ok := os.LookupEnv("THRESHOLD_REFRESH_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("THRESHOLD_REFRESH_INTERVAL: %w", err)
		}
		c.Ingestion.ThresholdRefreshInterval = d
	}
	return nil
}

// SessionClientID returns the broker client id for this run. A persistent
// session (clean_session false) is bound to the client id, so the configured id
// is kept as is and a restart resumes the same session. Otherwise suffix is
// appended so several workers can share one configuration.
func (c *Config) SessionClientID(suffix string) string {
	if !c.MQTT.CleanSession || suffix == "" {
		return c.MQTT.ClientID
	}
	return c.MQTT.ClientID + "-" + suffix
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	if c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required")
	}
	if c.MQTT.ClientID == "" {
		return errors.New("mqtt.client_id is required")
	}
	if c.MQTT.Namespace == "" {
		return errors.New("mqtt.namespace is required")
	}
	if c.MQTT.QOS < int(constants.QoSAtLeastOnce) || c.MQTT.QOS > 2 {
		return fmt.Errorf("mqtt.qos must be 1 or 2 so readings survive reconnects, got %d", c.MQTT.QOS)
	}
	if _, ok := storageDrivers[c.Storage.Driver]; !ok {
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return errors.New("storage.dsn (DATABASE_URL) is required for the postgres driver")
	}
	if _, ok := broadcastDrivers[c.Broadcast.Driver]; !ok {
		return fmt.Errorf("unknown broadcast.driver %q", c.Broadcast.Driver)
	}
	if c.Broadcast.Driver != "none" && c.Broadcast.URL == "" {
		return fmt.Errorf("broadcast.url is required for the %s driver", c.Broadcast.Driver)
	}
	if c.Ingestion.ThresholdRefreshInterval <= 0 {
		return errors.New("ingestion.threshold_refresh_interval must be positive")
	}
	if c.Status.Enabled && c.Status.Interval <= 0 {
		return errors.New("status.interval must be positive")
	}
	return nil
}
