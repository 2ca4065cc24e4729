package config

import (
	"os"
	"path/filepath"

	"xray-backend/internal/constants"
)

// Config represents the application configuration
type Config struct {
	Xray     XrayConfig     `mapstructure:"xray"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Socket   SocketConfig   `mapstructure:"socket"`
	Services ServicesConfig `mapstructure:"services"`
	Host     HostConfig     `mapstructure:"host"`
	LogLevel string         `mapstructure:"log_level"`
	LogFile  string         `mapstructure:"log_file"`
}

// XrayConfig holds the location of the live proxy configuration
type XrayConfig struct {
	ConfigPath  string `mapstructure:"config_path"`
	BlockedTag  string `mapstructure:"blocked_tag"`
	ServiceName string `mapstructure:"service_name"`
}

// StorageConfig holds the side-store directories
type StorageConfig struct {
	QuotaDir string `mapstructure:"quota_dir"`
	SheetDir string `mapstructure:"sheet_dir"`
	WriteQR  bool   `mapstructure:"write_qr"`
}

// SocketConfig holds the request server socket settings
type SocketConfig struct {
	Path        string `mapstructure:"path"`
	Group       string `mapstructure:"group"`
	Mode        uint32 `mapstructure:"mode"`
	ReadTimeout int    `mapstructure:"read_timeout"`
}

// ServicesConfig holds the OS service names reported by status and logs
type ServicesConfig struct {
	ReverseProxy string            `mapstructure:"reverse_proxy"`
	LogUnits     map[string]string `mapstructure:"log_units"`
}

// HostConfig holds display metadata sources for the credential sheet
type HostConfig struct {
	NginxConfPath string   `mapstructure:"nginx_conf_path"`
	PublicIPURLs  []string `mapstructure:"public_ip_urls"`
	DefaultPort   int      `mapstructure:"default_port"`
}

// BackupPath returns the single rolling backup slot of the proxy config
func (c XrayConfig) BackupPath() string {
	return c.ConfigPath + constants.BackupSuffix
}

// LockPath returns the advisory lock file guarding config read-modify-write
func (c XrayConfig) LockPath() string {
	return filepath.Join(filepath.Dir(c.ConfigPath), "."+filepath.Base(c.ConfigPath)+constants.LockSuffix)
}

// SocketMode returns the socket permission bits
func (c SocketConfig) SocketMode() os.FileMode {
	return os.FileMode(c.Mode) & os.ModePerm
}
