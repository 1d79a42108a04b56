package config

import (
	"fmt"
	"slices"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))

	switch c.Store.Backend {
	case BackendJSONL:
		if !strings.HasSuffix(strings.ToLower(c.Store.JSONLPath), ".jsonl") {
			return fmt.Errorf("store.jsonl_path must end in .jsonl (got %q)", c.Store.JSONLPath)
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case BackendMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo backend")
		}
	case BackendFirestore:
		if c.Store.ProjectID == "" {
			return fmt.Errorf("GCP_PROJECT_ID is required for the firestore backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend %q is not one of %s", c.Store.Backend, strings.Join(Backends(), ", "))
	}

	if c.Events.Enabled {
		if c.Store.ProjectID == "" {
			return fmt.Errorf("GCP_PROJECT_ID is required when events are enabled")
		}
		if c.Events.TopicID == "" {
			return fmt.Errorf("events.topic_id is required when events are enabled")
		}
	}

	if c.Away.MaxDuration < 0 {
		return fmt.Errorf("away.max_duration must be >= 0 (got %s)", c.Away.MaxDuration)
	}

	if !slices.Contains([]string{"json", "console"}, c.Log.Format) {
		return fmt.Errorf("log.format must be json or console (got %q)", c.Log.Format)
	}
	return nil
}

// Backends lists the accepted STORE_BACKEND values.
func Backends() []string {
	return []string{BackendJSONL, BackendFirestore, BackendMongo, BackendSQLite, BackendMemory}
}
