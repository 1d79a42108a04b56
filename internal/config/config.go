package config

import "time"

// Store backends selectable with STORE_BACKEND.
const (
	BackendJSONL     = "jsonl"
	BackendFirestore = "firestore"
	BackendMongo     = "mongo"
	BackendSQLite    = "sqlite"
	BackendMemory    = "memory"
)

// Config is the root application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Events EventsConfig `yaml:"events"`
	Away   AwayConfig   `yaml:"away"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"HTTP_ADDR"               env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	CORSOrigins     []string      `yaml:"cors_origins"     env:"CORS_ALLOWED_ORIGINS"    env-separator:","`
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	Backend             string `yaml:"backend"              env:"STORE_BACKEND"        env-default:"jsonl"`
	JSONLPath           string `yaml:"jsonl_path"           env:"JSONL_PATH"           env-default:"./storage/afk_log.jsonl"`
	SQLitePath          string `yaml:"sqlite_path"          env:"SQLITE_PATH"          env-default:"./storage/afk.db"`
	MongoURI            string `yaml:"mongodb_uri"          env:"MONGODB_URI"`
	MongoDatabase       string `yaml:"mongodb_database"     env:"MONGODB_DATABASE"     env-default:"afk_slackbot"`
	MongoCollection     string `yaml:"mongodb_collection"   env:"MONGODB_COLLECTION"   env-default:"afk_records"`
	ProjectID           string `yaml:"gcp_project_id"       env:"GCP_PROJECT_ID"`
	FirestoreCollection string `yaml:"firestore_collection" env:"FIRESTORE_COLLECTION" env-default:"afk_records"`
}

// EventsConfig controls status-change announcements.
type EventsConfig struct {
	Enabled    bool   `yaml:"enabled"     env:"EVENTS_ENABLED"     env-default:"false"`
	TopicID    string `yaml:"topic_id"    env:"EVENTS_TOPIC_ID"    env-default:"away-status"`
	WebhookURL string `yaml:"webhook_url" env:"EVENTS_WEBHOOK_URL"`
}

// AwayConfig holds declaration behaviour.
type AwayConfig struct {
	SupersedePrevious bool          `yaml:"supersede_previous" env:"AWAY_SUPERSEDE_PREVIOUS" env-default:"false"`
	MaxDuration       time.Duration `yaml:"max_duration"       env:"AWAY_MAX_DURATION"       env-default:"720h"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}
