// Package device keeps the server's stable identity across restarts.
package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Identity names this server to web clients.
type Identity struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// LoadIdentity reads the identity stored at path, creating and saving a new
// one when the file is missing or unusable. An empty path yields an
// unsaved identity.
func LoadIdentity(path string) (Identity, error) {
	if path == "" {
		return newIdentity(), nil
	}

	id, err := readIdentity(path)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("Replacing unreadable device identity")
	}

	id = newIdentity()
	if err := saveIdentity(path, id); err != nil {
		return Identity{}, err
	}
	log.Info().Str("uuid", id.UUID).Str("name", id.Name).Msg("Device identity created")
	return id, nil
}

func readIdentity(path string) (Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Identity{}, err
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("invalid identity file: %w", err)
	}
	if id.UUID == "" {
		return Identity{}, errors.New("identity file has no uuid")
	}
	if id.Name == "" {
		id.Name = defaultName()
	}
	return id, nil
}

func saveIdentity(path string, id Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func newIdentity() Identity {
	return Identity{UUID: uuid.NewString(), Name: defaultName()}
}

func defaultName() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "spotmpd"
}
