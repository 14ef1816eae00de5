// Package auth keeps the client's copy of the shared board credential.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EnvToken overrides any stored credential.
const EnvToken = "BOARD_TOKEN"

const credFileName = "credentials.json"

// ErrNoCredential means neither the environment nor the credentials file
// holds a token.
var ErrNoCredential = errors.New("no credential: run `board auth login` or set " + EnvToken)

type Credential struct {
	Token     string    `json:"token"`
	Server    string    `json:"server,omitempty"`
	Source    string    `json:"source"` // "env" | "file"
	CreatedAt time.Time `json:"created_at"`
}

// Keyring reads and writes the credentials file in Dir.
type Keyring struct {
	Dir string
}

// Default returns the keyring under ~/.board.
func Default() (*Keyring, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("home: %w", err)
	}
	return &Keyring{Dir: filepath.Join(home, ".board")}, nil
}

func (k *Keyring) path() string { return filepath.Join(k.Dir, credFileName) }

// Get returns the credential in effect, preferring BOARD_TOKEN.
func (k *Keyring) Get() (*Credential, error) {
	if env := stripBearer(os.Getenv(EnvToken)); env != "" {
		return &Credential{Token: env, Source: "env"}, nil
	}
	b, err := os.ReadFile(k.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var c Credential
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	c.Token = stripBearer(c.Token)
	if c.Token == "" {
		return nil, ErrNoCredential
	}
	c.Source = "file"
	return &c, nil
}

// Set stores token for server, owner-readable only.
func (k *Keyring) Set(token, server string) error {
	token = stripBearer(token)
	if token == "" {
		return errors.New("empty token")
	}
	if err := os.MkdirAll(k.Dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	b, err := json.MarshalIndent(Credential{
		Token:     token,
		Server:    server,
		Source:    "file",
		CreatedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.WriteFile(k.path(), b, 0o600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Delete removes the credentials file. A missing file is not an error.
func (k *Keyring) Delete() error {
	if err := os.Remove(k.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

func stripBearer(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 6 && strings.EqualFold(s[:6], "bearer") && (len(s) == 6 || s[6] == ' ') {
		return strings.TrimSpace(s[6:])
	}
	return s
}

// Mask shows only the last four characters of a token.
func Mask(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}
