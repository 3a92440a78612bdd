package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tecnokaijin/storefront/internal/cart"
	"github.com/tecnokaijin/storefront/internal/models"
)

// session is what login leaves behind in session.json
type session struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// stateDir holds the client's durable slots
type stateDir string

func (d stateDir) sessionPath() string { return filepath.Join(string(d), "session.json") }
func (d stateDir) cartPath() string    { return filepath.Join(string(d), "cart.json") }

func (d stateDir) loadSession() (*session, error) {
	data, err := os.ReadFile(d.sessionPath())
	if errors.Is(err, fs.ErrNotExist) {
		return &session{}, nil
	}
	if err != nil {
		return nil, err
	}
	var s session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corrupt session file %s: %w", d.sessionPath(), err)
	}
	return &s, nil
}

func (d stateDir) saveSession(s *session) error {
	if err := os.MkdirAll(string(d), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.sessionPath(), data, 0o600)
}

func (d stateDir) clearSession() error {
	err := os.Remove(d.sessionPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (d stateDir) openCart() (*cart.Cart, error) {
	return cart.New(cart.NewFileStore(d.cartPath()))
}

func defaultStateDir() string {
	if dir := os.Getenv("TK_STATE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tecnokaijin"
	}
	return filepath.Join(home, ".tecnokaijin")
}
