package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/jsonc"

	"xray-backend/internal/config"
	"xray-backend/internal/constants"
	apperrors "xray-backend/internal/errors"
	"xray-backend/internal/models"
)

// ProxyConfig is the decoded live proxy configuration.
// Unknown keys are kept verbatim so a save only changes client lists and routing.
type ProxyConfig struct {
	doc map[string]any
}

// ParseProxyConfig decodes a JSON (or JSON with comments) proxy configuration
func ParseProxyConfig(data []byte) (*ProxyConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse proxy config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return &ProxyConfig{doc: doc}, nil
}

// Marshal encodes the configuration as indented JSON
func (c *ProxyConfig) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c.doc); err != nil {
		return nil, fmt.Errorf("failed to encode proxy config: %w", err)
	}
	return buf.Bytes(), nil
}

// inbounds returns every inbound object, skipping malformed entries
func (c *ProxyConfig) inbounds() []map[string]any {
	list, _ := c.doc["inbounds"].([]any)
	result := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if ib, ok := item.(map[string]any); ok {
			result = append(result, ib)
		}
	}
	return result
}

// clients returns the client list of an inbound without modifying it
func clients(ib map[string]any) []any {
	settings, _ := ib["settings"].(map[string]any)
	list, _ := settings["clients"].([]any)
	return list
}

// setClients replaces the client list of an inbound, creating settings when missing
func setClients(ib map[string]any, list []any) {
	settings, ok := ib["settings"].(map[string]any)
	if !ok {
		settings = map[string]any{}
		ib["settings"] = settings
	}
	settings["clients"] = list
}

func protocolOf(ib map[string]any) string {
	p, _ := ib["protocol"].(string)
	return p
}

func isRealProtocol(protocol string) bool {
	for _, p := range constants.RealProtocols {
		if p == protocol {
			return true
		}
	}
	return false
}

func emailOf(client any) (string, bool) {
	m, ok := client.(map[string]any)
	if !ok {
		return "", false
	}
	email, ok := m["email"].(string)
	return email, ok
}

// EmailExists reports whether any vless, vmess or trojan listener holds email
func (c *ProxyConfig) EmailExists(email string) bool {
	for _, ib := range c.inbounds() {
		if !isRealProtocol(protocolOf(ib)) {
			continue
		}
		for _, client := range clients(ib) {
			if e, ok := emailOf(client); ok && e == email {
				return true
			}
		}
	}
	return false
}

// AppendClient adds a client to every listener of protocol and returns how many were modified
func (c *ProxyConfig) AppendClient(protocol, email, secret string) int {
	n := 0
	for _, ib := range c.inbounds() {
		if protocolOf(ib) != protocol {
			continue
		}
		switch protocol {
		case constants.ProtocolVless, constants.ProtocolVmess, constants.ProtocolTrojan:
			entry := map[string]any{
				models.SecretField(protocol): secret,
				"email":                      email,
			}
			setClients(ib, append(clients(ib), entry))
			n++
		}
	}
	return n
}

// RemoveClient drops every client of protocol with email and returns the removed count
func (c *ProxyConfig) RemoveClient(protocol, email string) int {
	removed := 0
	for _, ib := range c.inbounds() {
		if protocolOf(ib) != protocol {
			continue
		}
		list := clients(ib)
		kept := make([]any, 0, len(list))
		for _, client := range list {
			if e, ok := emailOf(client); ok && e == email {
				continue
			}
			kept = append(kept, client)
		}
		if len(kept) < len(list) {
			removed += len(list) - len(kept)
			setClients(ib, kept)
		}
	}
	return removed
}

// ClientSecret returns the secret field of the first client of protocol with email
func (c *ProxyConfig) ClientSecret(protocol, email string) (string, bool) {
	field := models.SecretField(protocol)
	for _, ib := range c.inbounds() {
		if protocolOf(ib) != protocol {
			continue
		}
		for _, client := range clients(ib) {
			if e, ok := emailOf(client); !ok || e != email {
				continue
			}
			if secret, ok := client.(map[string]any)[field].(string); ok && secret != "" {
				return secret, true
			}
		}
	}
	return "", false
}

// blockedRule returns the first routing rule sending traffic to tag
func (c *ProxyConfig) blockedRule(tag string) map[string]any {
	routing, ok := c.doc["routing"].(map[string]any)
	if !ok {
		return nil
	}
	rules, _ := routing["rules"].([]any)
	for _, item := range rules {
		rule, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := rule["outboundTag"].(string); t == tag {
			return rule
		}
	}
	return nil
}

// BlockUser adds finalUser to the user list of the blocked routing rule.
// It reports whether the configuration changed; a missing rule is left alone.
func (c *ProxyConfig) BlockUser(tag, finalUser string) bool {
	rule := c.blockedRule(tag)
	if rule == nil {
		return false
	}
	users, _ := rule["user"].([]any)
	for _, u := range users {
		if s, _ := u.(string); s == finalUser {
			return false
		}
	}
	rule["user"] = append(users, finalUser)
	return true
}

// UnblockUser removes finalUser from the blocked routing rule and reports whether it was present
func (c *ProxyConfig) UnblockUser(tag, finalUser string) bool {
	rule := c.blockedRule(tag)
	if rule == nil {
		return false
	}
	users, _ := rule["user"].([]any)
	kept := make([]any, 0, len(users))
	for _, u := range users {
		if s, _ := u.(string); s == finalUser {
			continue
		}
		kept = append(kept, u)
	}
	if len(kept) == len(users) {
		return false
	}
	rule["user"] = kept
	return true
}

// IsUserBlocked reports whether finalUser is listed in the blocked routing rule
func (c *ProxyConfig) IsUserBlocked(tag, finalUser string) bool {
	rule := c.blockedRule(tag)
	if rule == nil {
		return false
	}
	users, _ := rule["user"].([]any)
	for _, u := range users {
		if s, _ := u.(string); s == finalUser {
			return true
		}
	}
	return false
}

// XrayConfigStore loads and saves the live proxy configuration file
type XrayConfigStore struct {
	path       string
	backupPath string
	store      *AtomicStore
	logger     *logrus.Logger
}

// NewXrayConfigStore creates a new config store
func NewXrayConfigStore(cfg config.XrayConfig, store *AtomicStore, logger *logrus.Logger) *XrayConfigStore {
	return &XrayConfigStore{
		path:       cfg.ConfigPath,
		backupPath: cfg.BackupPath(),
		store:      store,
		logger:     logger,
	}
}

// Path returns the live config location
func (s *XrayConfigStore) Path() string {
	return s.path
}

// Load reads the live proxy configuration
func (s *XrayConfigStore) Load() (*ProxyConfig, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &apperrors.NotFoundError{What: "proxy config " + s.path}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy config: %w", err)
	}
	return ParseProxyConfig(data)
}

// SaveWithBackup copies the current file into the rolling backup slot and
// atomically writes cfg, keeping the original owner, group and mode.
func (s *XrayConfigStore) SaveWithBackup(cfg *ProxyConfig) (string, error) {
	data, err := cfg.Marshal()
	if err != nil {
		return "", err
	}

	owner := RootOwner()
	if info, err := os.Stat(s.path); err == nil {
		owner.Mode = info.Mode().Perm()
		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			owner.UID = int(st.Uid)
			owner.GID = int(st.Gid)
		}

		if current, err := os.ReadFile(s.path); err == nil {
			backupOwner := FileOwner{Mode: constants.BackupFileMode, UID: 0, GID: 0}
			if err := s.store.Write(s.backupPath, current, backupOwner); err != nil {
				s.logger.Warnf("Failed to write config backup %s: %v", s.backupPath, err)
			}
		} else {
			s.logger.Warnf("Failed to read config for backup: %v", err)
		}
	}

	if err := s.store.Write(s.path, data, owner); err != nil {
		return "", fmt.Errorf("failed to save proxy config: %w", err)
	}

	s.logger.Infof("Saved proxy config %s (backup %s)", s.path, s.backupPath)
	return s.backupPath, nil
}
