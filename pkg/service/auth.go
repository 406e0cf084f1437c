package service

import (
	"fmt"
	"io"
	"os"

	"github.com/artcritique/brushup/pkg/client"
	"github.com/artcritique/brushup/pkg/credentials"
	"github.com/artcritique/brushup/pkg/logger"
	"github.com/artcritique/brushup/pkg/output"
	"github.com/artcritique/brushup/pkg/prompter"
)

// AuthService manages the stored access token.
type AuthService struct {
	printer *output.Printer
	prompt  *prompter.Prompter
	out     io.Writer
}

// NewAuthService creates an auth service.
func NewAuthService(printer *output.Printer) *AuthService {
	return &AuthService{printer: printer, prompt: prompter.New(), out: os.Stdout}
}

// SetToken stores an access token, prompting for it when token is empty.
func (s *AuthService) SetToken(token string) error {
	if token == "" {
		var err error
		token, err = s.prompt.PromptSecret("Access token: ")
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
	}

	creds, err := credentials.FromToken(token)
	if err != nil {
		return err
	}
	if creds.IsExpired() {
		return fmt.Errorf("token expired at %s", creds.ExpiresAt.Format("Jan 2, 2006 15:04"))
	}

	if err := credentials.Save(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	logger.Debug("Stored access token", "user_id", creds.UserID)

	name := creds.Username
	if name == "" {
		name = "user " + creds.UserID
	}
	return s.printer.Success("Logged in as %s.", name)
}

// Logout removes stored credentials.
func (s *AuthService) Logout() error {
	if err := credentials.Delete(); err != nil {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	client.ClearAuthToken()
	return s.printer.Success("Logged out.")
}

// Status reports who the stored token belongs to.
func (s *AuthService) Status() error {
	creds, err := credentials.Load()
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil {
		fmt.Fprintln(s.out, "Not logged in. Run 'brushup auth set-token' to authenticate.")
		return nil
	}

	fmt.Fprintf(s.out, "User:    %s (id %s)\n", creds.Username, creds.UserID)
	if creds.IsStaff {
		fmt.Fprintln(s.out, "Role:    staff")
	}
	switch {
	case creds.ExpiresAt.IsZero():
		fmt.Fprintln(s.out, "Expires: never")
	case creds.IsExpired():
		output.PrintWarning("token expired at %s", creds.ExpiresAt.Format("Jan 2, 2006 15:04"))
	default:
		fmt.Fprintf(s.out, "Expires: %s\n", creds.ExpiresAt.Format("Jan 2, 2006 15:04"))
	}
	return nil
}
