package cmd

import (
	"github.com/spf13/cobra"

	"github.com/artcritique/brushup/pkg/output"
	"github.com/artcritique/brushup/pkg/service"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Manage the access token used to talk to BrushUp",
}

var setTokenCmd = &cobra.Command{
	Use:   "set-token [token]",
	Short: "Store an access token",
	Long:  "Store an access token. The token is read from a hidden prompt when not given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := ""
		if len(args) == 1 {
			token = args[0]
		}
		return newAuthService().SetToken(token)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newAuthService().Logout()
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the authenticated user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newAuthService().Status()
	},
}

func newAuthService() *service.AuthService {
	return service.NewAuthService(output.NewPrinter(nil, output.GetOutputFormat()))
}

func init() {
	authCmd.AddCommand(setTokenCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(authStatusCmd)
}
