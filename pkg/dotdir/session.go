package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	sessionFile = "session.json"

	// sessionPrefix marks session ids minted by the CLI.
	sessionPrefix = "cli_"
)

// SessionState is the CLI's current session, persisted as session.json.
type SessionState struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// LoadSession loads session.json. Returns nil, nil if none exists.
func (m *Manager) LoadSession(overrideDir string) (*SessionState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, sessionFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session state: %w", err)
	}

	state := &SessionState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing session state: %w", err)
	}
	if state.ID == "" {
		return nil, errors.New("session state has no id")
	}
	return state, nil
}

// SaveSession persists state to session.json.
func (m *Manager) SaveSession(state *SessionState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil session state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, sessionFile), data, 0o600); err != nil {
		return fmt.Errorf("writing session state: %w", err)
	}
	return nil
}

// NewSession mints and saves a fresh session, replacing any current one.
func (m *Manager) NewSession(overrideDir string) (*SessionState, error) {
	state := &SessionState{
		ID:        sessionPrefix + uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := m.SaveSession(state, overrideDir); err != nil {
		return nil, err
	}
	return state, nil
}

// CurrentSession returns the saved session, minting one on first use.
func (m *Manager) CurrentSession(overrideDir string) (*SessionState, error) {
	state, err := m.LoadSession(overrideDir)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}
	return m.NewSession(overrideDir)
}
