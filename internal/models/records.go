package models

// QuotaRecord is the ledger entry stored per (protocol, final_user)
type QuotaRecord struct {
	Username   string `json:"username"`
	Protocol   string `json:"protocol"`
	QuotaLimit int64  `json:"quota_limit"`
	CreatedAt  string `json:"created_at"`
	ExpiredAt  string `json:"expired_at"`
}

// BlockedRecord holds custody of a blocked account's secret
type BlockedRecord struct {
	Username  string `json:"username"`
	Protocol  string `json:"protocol"`
	Secret    string `json:"secret"`
	BlockedAt string `json:"blocked_at"`
}

// BlockedStatus is the answer of block_get
type BlockedStatus struct {
	Blocked   bool   `json:"blocked"`
	BlockedAt string `json:"blocked_at,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
}
