package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/contentapi"
	"gopkg.in/yaml.v3"
)

var errNotLoggedIn = errors.New("not logged in, run `phishsim login` first")

func loadSession(path string) (*contentapi.Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var s contentapi.Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if s.Token == "" {
		return nil, errNotLoggedIn
	}
	return &s, nil
}

func saveSession(path string, s *contentapi.Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func clearSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
