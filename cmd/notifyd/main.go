// Command notifyd runs a development BrushUp notifications server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/artcritique/brushup/internal/server"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:          "notifyd",
	Short:        "BrushUp notifications development server",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil {
			log.Debug(".env file not found, using system environment variables")
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the notifications API and live channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.NewWithOptions(os.Stderr, log.Options{
			Prefix:          "notifyd",
			ReportTimestamp: true,
		})
		level, err := log.ParseLevel(v.GetString("log_level"))
		if err != nil {
			level = log.InfoLevel
		}
		logger.SetLevel(level)
		if level > log.DebugLevel {
			gin.SetMode(gin.ReleaseMode)
		}

		secret, err := jwtSecret()
		if err != nil {
			return err
		}

		store, err := server.OpenStore(v.GetString("db"))
		if err != nil {
			return err
		}
		defer store.Close()

		cfg := server.DefaultConfig()
		cfg.Addr = v.GetString("addr")
		cfg.JWTSecret = secret
		cfg.AllowedOrigins = v.GetStringSlice("allowed_origins")
		cfg.RateLimit = v.GetFloat64("rate_limit")
		cfg.RateBurst = v.GetInt("rate_burst")
		cfg.Logger = logger

		srv, err := server.New(cfg, store)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx)
	},
}

var (
	tokenUserID   int64
	tokenUsername string
	tokenStaff    bool
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := jwtSecret()
		if err != nil {
			return err
		}
		tok, err := server.IssueToken(secret, tokenUserID, tokenUsername, tokenStaff, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func jwtSecret() ([]byte, error) {
	secret := v.GetString("jwt_secret")
	if secret == "" {
		return nil, fmt.Errorf("NOTIFYD_JWT_SECRET is not set")
	}
	return []byte(secret), nil
}

func init() {
	v.SetEnvPrefix("NOTIFYD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	def := server.DefaultConfig()
	v.SetDefault("addr", def.Addr)
	v.SetDefault("db", "notifyd.db")
	v.SetDefault("rate_limit", def.RateLimit)
	v.SetDefault("rate_burst", def.RateBurst)
	v.SetDefault("log_level", "info")

	serveCmd.Flags().String("addr", def.Addr, "Listen address")
	serveCmd.Flags().String("db", "notifyd.db", "SQLite database path, or :memory:")
	serveCmd.Flags().StringSlice("allowed-origins", nil, "Origin patterns accepted on upgrade (default any)")
	_ = v.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("db", serveCmd.Flags().Lookup("db"))
	_ = v.BindPFlag("allowed_origins", serveCmd.Flags().Lookup("allowed-origins"))

	tokenCmd.Flags().Int64Var(&tokenUserID, "user-id", 1, "User id claim")
	tokenCmd.Flags().StringVar(&tokenUsername, "username", "", "Username claim")
	tokenCmd.Flags().BoolVar(&tokenStaff, "staff", false, "Grant staff permissions")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime, 0 for no expiry")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
