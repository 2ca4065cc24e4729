package models

import (
	"strings"

	"xray-backend/internal/constants"
)

// AccountState represents where an account is in its lifecycle
type AccountState int

const (
	// Absent means no store holds the account
	Absent AccountState = iota
	// Active means a config client exists and no blocked record exists
	Active
	// Blocked means the config client was removed and a blocked record holds the secret
	Blocked
)

// String returns the state name
func (s AccountState) String() string {
	switch s {
	case Active:
		return "active"
	case Blocked:
		return "blocked"
	default:
		return "absent"
	}
}

// Account identifies one provisioned identity
type Account struct {
	Protocol string
	Username string
}

// FinalUser returns the canonical key username@protocol
func (a Account) FinalUser() string {
	return FinalUser(a.Protocol, a.Username)
}

// Families returns the real protocol families that carry the account's client entries
func (a Account) Families() []string {
	return ProtocolFamilies(a.Protocol)
}

// SecretField returns the client field that carries the secret for a protocol
func SecretField(protocol string) string {
	if protocol == constants.ProtocolTrojan {
		return "password"
	}
	return "id"
}

// FinalUser builds the canonical account key
func FinalUser(protocol, username string) string {
	return username + constants.FinalUserSeparator + protocol
}

// SplitFinalUser splits username@protocol into its parts
func SplitFinalUser(finalUser string) (username, protocol string, ok bool) {
	i := strings.LastIndex(finalUser, constants.FinalUserSeparator)
	if i <= 0 || i == len(finalUser)-1 {
		return "", "", false
	}
	return finalUser[:i], finalUser[i+1:], true
}

// ProtocolFamilies expands allproto into the three real families
func ProtocolFamilies(protocol string) []string {
	if protocol == constants.ProtocolAllProto {
		return constants.RealProtocols
	}
	return []string{protocol}
}

// IsValidProtocol reports whether protocol names an account protocol
func IsValidProtocol(protocol string) bool {
	switch protocol {
	case constants.ProtocolVless, constants.ProtocolVmess, constants.ProtocolTrojan, constants.ProtocolAllProto:
		return true
	}
	return false
}
