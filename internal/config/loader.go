package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	apperrors "xray-backend/internal/errors"
)

// EnvPrefix is the prefix of every environment override, e.g. XRAY_BACKEND_XRAY_CONFIG_PATH
const EnvPrefix = "XRAY_BACKEND"

// Load loads the configuration from defaults, an optional file and environment variables
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Normalize values
	cfg.Xray.ConfigPath = strings.TrimSpace(cfg.Xray.ConfigPath)
	cfg.Storage.QuotaDir = strings.TrimSpace(cfg.Storage.QuotaDir)
	cfg.Storage.SheetDir = strings.TrimSpace(cfg.Storage.SheetDir)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults mirrors the paths used by a stock xray + nginx install
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	v.SetDefault("xray.config_path", "/usr/local/etc/xray/config.json")
	v.SetDefault("xray.blocked_tag", "blocked")
	v.SetDefault("xray.service_name", "xray")

	v.SetDefault("storage.quota_dir", "/opt/quota")
	v.SetDefault("storage.sheet_dir", "/opt")
	v.SetDefault("storage.write_qr", true)

	v.SetDefault("socket.path", "/run/xray-backend.sock")
	v.SetDefault("socket.group", "discordbot")
	v.SetDefault("socket.mode", 0o660)
	v.SetDefault("socket.read_timeout", 10)

	v.SetDefault("services.reverse_proxy", "nginx")
	v.SetDefault("services.log_units", map[string]string{
		"xray":             "xray",
		"nginx":            "nginx",
		"backend":          "xray-backend",
		"bot":              "xray-discord-bot",
		"xray-backend":     "xray-backend",
		"xray-discord-bot": "xray-discord-bot",
	})

	v.SetDefault("host.nginx_conf_path", "/etc/nginx/conf.d/xray.conf")
	v.SetDefault("host.public_ip_urls", []string{"https://ifconfig.me/ip", "https://api.ipify.org"})
	v.SetDefault("host.default_port", 443)
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Xray.ConfigPath == "" {
		return &apperrors.ConfigError{Section: "xray", Message: "config_path is required"}
	}
	if cfg.Storage.QuotaDir == "" {
		return &apperrors.ConfigError{Section: "storage", Message: "quota_dir is required"}
	}
	if cfg.Storage.SheetDir == "" {
		return &apperrors.ConfigError{Section: "storage", Message: "sheet_dir is required"}
	}
	if cfg.Socket.Path == "" {
		return &apperrors.ConfigError{Section: "socket", Message: "path is required"}
	}
	if cfg.Socket.Mode == 0 || cfg.Socket.Mode > 0o777 {
		return &apperrors.ConfigError{Section: "socket", Message: fmt.Sprintf("mode %o is out of range", cfg.Socket.Mode)}
	}
	if len(cfg.Services.LogUnits) == 0 {
		return &apperrors.ConfigError{Section: "services", Message: "log_units must not be empty"}
	}
	if cfg.Host.DefaultPort < 1 || cfg.Host.DefaultPort > 65535 {
		return &apperrors.ConfigError{Section: "host", Message: fmt.Sprintf("default_port %d is out of range", cfg.Host.DefaultPort)}
	}

	return nil
}
