package models

import (
	"sort"

	"xray-backend/internal/constants"
)

// LedgerItem is one row of the list action
type LedgerItem struct {
	Username   string `json:"username"`
	Protocol   string `json:"protocol"`
	ExpiredAt  string `json:"expired_at"`
	CreatedAt  string `json:"created_at"`
	QuotaLimit int64  `json:"quota_limit"`
	DetailPath string `json:"detail_path"`
	Blocked    bool   `json:"blocked"`
}

// LedgerPage is a paginated slice of ledger items
type LedgerPage struct {
	Offset  int          `json:"offset"`
	Limit   int          `json:"limit"`
	Total   int          `json:"total"`
	HasMore bool         `json:"has_more"`
	Items   []LedgerItem `json:"items"`
}

// sortExpiry treats a missing expiry as far future
func (i LedgerItem) sortExpiry() string {
	if i.ExpiredAt == "" {
		return constants.FarFutureDate
	}
	return i.ExpiredAt
}

// SortLedgerItems orders by expiry ascending, then username
func SortLedgerItems(items []LedgerItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ei, ej := items[i].sortExpiry(), items[j].sortExpiry()
		if ei != ej {
			return ei < ej
		}
		return items[i].Username < items[j].Username
	})
}
