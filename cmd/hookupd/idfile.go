package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const idFileName = "hookupd-id.json"

// identity is a stable connection id hookupd presents across restarts,
// persisted to disk the same way the teacher's registration.go persists a
// host's control-plane identity — except there is no registration round
// trip here, the id is generated locally and never leaves the process
// except as a log field.
type identity struct {
	ConnectionID string `json:"connection_id"`
}

// loadOrCreateIdentity reads the persisted identity from dataDir, generating
// and saving a new one on first run.
func loadOrCreateIdentity(dataDir string) (*identity, error) {
	path := filepath.Join(dataDir, idFileName)

	data, err := os.ReadFile(path)
	if err == nil {
		var id identity
		if err := json.Unmarshal(data, &id); err != nil {
			return nil, fmt.Errorf("unmarshalling identity file: %w", err)
		}
		if id.ConnectionID != "" {
			return &id, nil
		}
	}

	id := &identity{ConnectionID: uuid.NewString()}
	if err := saveIdentity(dataDir, id); err != nil {
		return nil, err
	}
	return id, nil
}

func saveIdentity(dataDir string, id *identity) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dataDir, idFileName)
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling identity: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing identity file: %w", err)
	}

	slog.Info("connection identity saved", "path", path, "connection_id", id.ConnectionID)
	return nil
}
