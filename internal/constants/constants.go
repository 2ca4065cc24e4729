package constants

import "math"

const (
	// Protocol names
	ProtocolVless    = "vless"
	ProtocolVmess    = "vmess"
	ProtocolTrojan   = "trojan"
	ProtocolAllProto = "allproto"

	// Pseudo-filter accepted by list
	ProtocolFilterAll = "all"

	// User validation constants
	MaxUsernameLength = 64

	// User naming constants
	FinalUserSeparator = "@"

	// Traffic constants
	BytesInGB = 1024 * 1024 * 1024
	// MaxQuotaGB is the largest quota whose byte count fits an int64
	MaxQuotaGB = math.MaxInt64 / BytesInGB

	// Duration constants
	MinDays = 1
	MaxDays = 3650

	// Pagination constants
	DefaultListLimit = 25
	MaxListLimit     = 25

	// Log viewer constants
	DefaultLogPageSize = 25
	MinLogPageSize     = 5
	MaxLogPageSize     = 80
	MaxLogLines        = 100000 // deepest journal window a page may reach

	// Request server constants
	MaxRequestBytes      = 1024 * 1024
	DefaultReadTimeout   = 10  // seconds
	DefaultWriteTimeout  = 10  // seconds
	DefaultClientTimeout = 120 // seconds, covers a daemon restart

	// Network constants
	PublicIPTimeout = 5 // seconds
	MaxPublicIPLen  = 64

	// Cache constants
	CacheExpiration      = 10 // minutes
	CacheCleanupInterval = 20 // minutes

	// Storage layout constants
	BlockedDirName   = "_blocked"
	RecordExt        = ".json"
	SheetExt         = ".txt"
	QRExt            = ".png"
	BackupSuffix     = ".backup"
	LockSuffix       = ".lock"
	DefaultFileMode  = 0o644
	BackupFileMode   = 0o600
	SecretFileMode   = 0o600
	StoreDirMode     = 0o755
	FarFutureDate    = "9999-12-31"
	QRSize           = 256 // pixels
	DefaultPublicTLS = 443

	// Formatting constants
	DateFormat      = "2006-01-02"
	SheetWidth      = 50
	SheetSecretKey  = "UUID/Pass"
	UnlimitedQuota  = "Unlimited"
	UnknownHostInfo = "unknown"
)

// RealProtocols are the protocol families that own client lists in the
// proxy configuration, in fan-out order.
var RealProtocols = []string{ProtocolVless, ProtocolVmess, ProtocolTrojan}

// LedgerProtocols are the ledger directories scanned by list.
var LedgerProtocols = []string{ProtocolVless, ProtocolVmess, ProtocolTrojan, ProtocolAllProto}
