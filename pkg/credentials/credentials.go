package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/artcritique/brushup/pkg/config"
)

type Credentials struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	IsStaff     bool      `json:"is_staff"`
}

// tokenClaims are the fields read from an access token. The signature is
// not checked here; the server verifies it.
type tokenClaims struct {
	UserID   json.Number `json:"user_id"`
	Username string      `json:"username"`
	IsStaff  bool        `json:"is_staff"`
	jwt.RegisteredClaims
}

// FromToken builds credentials from an access token's claims.
func FromToken(token string) (*Credentials, error) {
	var claims tokenClaims
	parser := jwt.NewParser(jwt.WithJSONNumber())
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	creds := &Credentials{
		AccessToken: token,
		UserID:      claims.UserID.String(),
		Username:    claims.Username,
		IsStaff:     claims.IsStaff,
	}
	if creds.UserID == "" && claims.Subject != "" {
		if _, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil {
			creds.UserID = claims.Subject
		}
	}
	if claims.ExpiresAt != nil {
		creds.ExpiresAt = claims.ExpiresAt.Time
	}
	return creds, nil
}

// Load loads credentials from disk
func Load() (*Credentials, error) {
	path := config.GetCredentialsPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Credentials don't exist yet
		}
		return nil, err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	return &creds, nil
}

// Save saves credentials to disk
func Save(creds *Credentials) error {
	path := config.GetCredentialsPath()

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}

	// Owner read/write only
	return os.WriteFile(path, data, 0600)
}

// Delete deletes credentials from disk
func Delete() error {
	path := config.GetCredentialsPath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsExpired checks if the access token is expired. Tokens without an
// expiry never expire.
func (c *Credentials) IsExpired() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(c.ExpiresAt)
}

// IsValid checks if credentials are valid
func (c *Credentials) IsValid() bool {
	return c.AccessToken != "" && !c.IsExpired()
}
