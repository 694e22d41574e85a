// Package auth keeps the daemon address and bearer token used by the
// remote CLI commands.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathEnv overrides where credentials are stored.
const PathEnv = "TMPSWEEP_CREDENTIALS_FILE"

var ErrNoCredentials = errors.New("not logged in; run `tmpsweep login`")

type Credentials struct {
	Server string `json:"server"`
	Token  string `json:"token,omitempty"`
}

// Path returns the credentials file location.
func Path() (string, error) {
	if p := strings.TrimSpace(os.Getenv(PathEnv)); p != "" {
		return p, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(configDir, "tmpsweep", "credentials.json"), nil
}

func Save(c Credentials) error {
	c.Server = strings.TrimRight(strings.TrimSpace(c.Server), "/")
	if c.Server == "" {
		return errors.New("server address is empty")
	}

	filePath, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}

	payload, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(filePath, payload, 0o600); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}
	return nil
}

func Load() (Credentials, error) {
	filePath, err := Path()
	if err != nil {
		return Credentials{}, err
	}

	payload, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, ErrNoCredentials
		}
		return Credentials{}, fmt.Errorf("read credentials file: %w", err)
	}

	var c Credentials
	if err := json.Unmarshal(payload, &c); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials file: %w", err)
	}
	if c.Server == "" {
		return Credentials{}, ErrNoCredentials
	}
	return c, nil
}
