// Package config reads and writes the TOML configuration under ~/.sendme:
// one global file selecting the default profile and one file per profile
// carrying the identity and backend settings.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Backend names accepted in profile configuration.
const (
	BackendMemory = "memory"
	BackendDynamo = "dynamo"
)

// Global represents ~/.sendme/config.toml.
type Global struct {
	DefaultProfile string `toml:"default_profile"`
}

// Profile represents a per-profile config.toml.
type Profile struct {
	// UserID is the authenticated local user. Empty means auth is required
	// before any chat operation.
	UserID string `toml:"user_id"`
	// Backend selects the remote implementation: memory or dynamo.
	Backend string `toml:"backend"`
	// PushEnabled toggles outbound push notifications on delivered messages.
	PushEnabled bool `toml:"push_enabled"`

	AWS AWS `toml:"aws"`
}

// AWS holds the DynamoDB and S3 settings for the dynamo backend.
type AWS struct {
	Region          string `toml:"region"`
	ProfilesTable   string `toml:"profiles_table"`
	ChatsTable      string `toml:"chats_table"`
	MessagesTable   string `toml:"messages_table"`
	MembershipTable string `toml:"membership_table"`
	ImageBucket     string `toml:"image_bucket"`
}

// LoadGlobal reads the global config from the given path.
func LoadGlobal(path string) (*Global, error) {
	var cfg Global
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadProfile reads a profile config from the given path.
func LoadProfile(path string) (*Profile, error) {
	var cfg Profile
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	return &cfg, nil
}

// SaveGlobal writes the global config, creating parent dirs as needed.
func SaveGlobal(path string, cfg *Global) error {
	return save(path, cfg)
}

// SaveProfile writes a profile config, creating parent dirs as needed.
func SaveProfile(path string, cfg *Profile) error {
	return save(path, cfg)
}

func save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
