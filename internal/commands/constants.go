package commands

import "strings"

// Action is one request kind understood by the dispatcher
type Action string

// Actions accepted on the socket and by the CLI
const (
	// Lightweight actions
	Ping   Action = "ping"
	Status Action = "status"
	List   Action = "list"
	Logs   Action = "logs"

	// Account lifecycle actions
	Add       Action = "add"
	Delete    Action = "del"
	Renew     Action = "renew"
	QuotaGet  Action = "quota_get"
	QuotaSet  Action = "quota_set"
	BlockGet  Action = "block_get"
	Block     Action = "block"
	Unblock   Action = "unblock"
	Detail    Action = "detail"
	GetDetail Action = "get_detail"
)

// Block operation values carried in the op field
const (
	OpBlock   = "block"
	OpUnblock = "unblock"
)

// All lists every action in a stable order
var All = []Action{
	Ping, Status, List, Logs,
	Add, Delete, Renew, QuotaGet, QuotaSet,
	BlockGet, Block, Unblock, Detail, GetDetail,
}

// Parse normalizes raw into an Action
func Parse(raw string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range All {
		if a == known {
			return a, true
		}
	}
	return "", false
}

// Mutates reports whether the action may write the proxy config, the ledger or a sheet.
// Mutating actions run under the config lock.
func (a Action) Mutates() bool {
	switch a {
	case Add, Delete, Renew, QuotaSet, Block, Unblock, Detail, GetDetail:
		return true
	}
	return false
}
