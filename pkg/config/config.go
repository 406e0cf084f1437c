package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"

	"github.com/artcritique/brushup/pkg/notify"
)

var configDir string
var configFilePath string
var credentialsPath string

// getConfigDir returns platform-specific config directory
func getConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		// Windows: %LOCALAPPDATA%\brushup\cli
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "brushup", "cli"), nil
	}

	// Unix-like (macOS, Linux): ~/.config/brushup/cli
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "brushup", "cli"), nil
}

// getSystemConfigPaths returns platform-specific system config paths
func getSystemConfigPaths() []string {
	if runtime.GOOS == "windows" {
		return []string{filepath.Join(os.Getenv("ProgramFiles"), "BrushUp", "cli", "config.toml")}
	}

	return []string{
		"/etc/brushup/cli/config.toml",
		"/usr/local/etc/brushup/cli/config.toml",
	}
}

// Init initializes the configuration
func Init(configPath string) error {
	var err error
	if configPath != "" {
		configDir = filepath.Dir(configPath)
		configFilePath = configPath
	} else {
		configDir, err = getConfigDir()
		if err != nil {
			return err
		}
		configFilePath = filepath.Join(configDir, "config.toml")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return err
	}

	credentialsPath = filepath.Join(configDir, "credentials")

	viper.SetConfigType("toml")
	setDefaults()

	// System config first, user config overrides it
	for _, sysConfigPath := range getSystemConfigPaths() {
		if _, err := os.Stat(sysConfigPath); err == nil {
			viper.SetConfigFile(sysConfigPath)
			_ = viper.ReadInConfig()
			break
		}
	}

	viper.SetConfigFile(configFilePath)
	_ = viper.ReadInConfig()

	return nil
}

func setDefaults() {
	viper.SetDefault("api.base_url", "http://localhost:8000")
	viper.SetDefault("api.timeout", 30)
	viper.SetDefault("output.format", "text")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", filepath.Join(configDir, "brushup-cli.log"))

	viper.SetDefault("notifications.ws_path", notify.DefaultPath)
	viper.SetDefault("notifications.poll_interval_ms", notify.DefaultPollInterval.Milliseconds())
	viper.SetDefault("notifications.max_reconnect_attempts", notify.DefaultMaxReconnectAttempts)
	viper.SetDefault("notifications.reconnect_interval_ms", notify.DefaultReconnectInterval.Milliseconds())
	viper.SetDefault("notifications.connect_timeout_ms", notify.DefaultConnectTimeout.Milliseconds())
	viper.SetDefault("notifications.polling_fallback", true)
	viper.SetDefault("notifications.toasts", true)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetString returns a string configuration value
func GetString(key string) string {
	value := viper.GetString(key)
	if key == "log.file" {
		return expandPath(value)
	}
	return value
}

// GetInt returns an int configuration value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool configuration value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetMillis reads an integer millisecond key as a duration
func GetMillis(key string) time.Duration {
	return time.Duration(viper.GetInt64(key)) * time.Millisecond
}

// Set overrides a value for the current process only
func Set(key string, value interface{}) {
	viper.Set(key, value)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() string {
	return configDir
}

// GetConfigFilePath returns the user config file path
func GetConfigFilePath() string {
	return configFilePath
}

// GetCredentialsPath returns the path to the credentials file
func GetCredentialsPath() string {
	return credentialsPath
}

// NotificationsEndpoint derives the live channel URL from api.base_url.
func NotificationsEndpoint() (string, error) {
	return notify.EndpointFromOrigin(GetString("api.base_url"), GetString("notifications.ws_path"))
}

// NotifyOptions builds session options from the notifications.* keys.
func NotifyOptions(token string) (notify.Options, error) {
	endpoint, err := NotificationsEndpoint()
	if err != nil {
		return notify.Options{}, err
	}

	maxAttempts := GetInt("notifications.max_reconnect_attempts")
	if maxAttempts == 0 {
		// zero in the file means "never reconnect"
		maxAttempts = -1
	}

	return notify.Options{
		Endpoint:             endpoint,
		Token:                token,
		MaxReconnectAttempts: maxAttempts,
		ReconnectInterval:    GetMillis("notifications.reconnect_interval_ms"),
		PollingFallback:      GetBool("notifications.polling_fallback"),
		PollInterval:         GetMillis("notifications.poll_interval_ms"),
		Toasts:               GetBool("notifications.toasts"),
		ConnectTimeout:       GetMillis("notifications.connect_timeout_ms"),
	}, nil
}
