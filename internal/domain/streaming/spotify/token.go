package spotify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// tokenFilePermission keeps the refresh token private to the service user.
const tokenFilePermission = 0600

// tokenData is the on-disk token format.
type tokenData struct {
	Token *oauth2.Token `json:"token"`
}

// LoadToken reads a saved OAuth token.
func LoadToken(path string) (*oauth2.Token, error) {
	if path == "" {
		return nil, fmt.Errorf("no token file configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", path, err)
	}
	if td.Token == nil || td.Token.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s has no refresh token", path)
	}
	return td.Token, nil
}

// SaveToken writes an OAuth token, creating the parent directory if needed.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(tokenData{Token: token}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, tokenFilePermission)
}
