package handlers

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"xray-backend/internal/commands"
	"xray-backend/internal/config"
	apperrors "xray-backend/internal/errors"
	"xray-backend/internal/models"
	"xray-backend/internal/services"
	"xray-backend/internal/validation"
)

// ServiceManager restarts and queries OS services
type ServiceManager interface {
	Restart(ctx context.Context, name string) error
	State(ctx context.Context, name string) services.ServiceState
}

// Journal returns the most recent lines logged by a unit
type Journal interface {
	Tail(ctx context.Context, unit string, n int) ([]string, error)
}

// Locker serializes config read-modify-write across processes
type Locker interface {
	Lock() (func(), error)
}

type handlerFunc func(ctx context.Context, req *models.Request) (models.Response, error)

// Dependencies wires the stores and OS collaborators used by the dispatcher
type Dependencies struct {
	Config   *config.Config
	Proxy    *services.XrayConfigStore
	Ledger   *services.QuotaLedger
	Blocked  *services.BlockedRegistry
	Sheets   *services.CredentialSheets
	Resolver *services.SecretResolver
	System   ServiceManager
	Journal  Journal
	// Lock may be nil when the caller already serializes requests
	Lock Locker
	// Now and NewSecret default to time.Now and a random UUIDv4
	Now       func() time.Time
	NewSecret func() string
	Logger    *logrus.Logger
}

// Dispatcher routes structured requests to the account lifecycle operations
type Dispatcher struct {
	cfg       *config.Config
	proxy     *services.XrayConfigStore
	ledger    *services.QuotaLedger
	blocked   *services.BlockedRegistry
	sheets    *services.CredentialSheets
	resolver  *services.SecretResolver
	system    ServiceManager
	journal   Journal
	lock      Locker
	now       func() time.Time
	newSecret func() string
	logger    *logrus.Logger

	handlers map[commands.Action]handlerFunc
}

// NewDispatcher creates a new action dispatcher
func NewDispatcher(deps Dependencies) *Dispatcher {
	d := &Dispatcher{
		cfg:       deps.Config,
		proxy:     deps.Proxy,
		ledger:    deps.Ledger,
		blocked:   deps.Blocked,
		sheets:    deps.Sheets,
		resolver:  deps.Resolver,
		system:    deps.System,
		journal:   deps.Journal,
		lock:      deps.Lock,
		now:       deps.Now,
		newSecret: deps.NewSecret,
		logger:    deps.Logger,
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.newSecret == nil {
		d.newSecret = uuid.NewString
	}

	d.initializeHandlers()
	return d
}

// initializeHandlers initializes the action handlers
func (d *Dispatcher) initializeHandlers() {
	d.handlers = map[commands.Action]handlerFunc{
		commands.Ping:      d.handlePing,
		commands.Status:    d.handleStatus,
		commands.List:      d.handleList,
		commands.Logs:      d.handleLogs,
		commands.Add:       d.handleAdd,
		commands.Delete:    d.handleDelete,
		commands.Renew:     d.handleRenew,
		commands.QuotaGet:  d.handleQuotaGet,
		commands.QuotaSet:  d.handleQuotaSet,
		commands.BlockGet:  d.handleBlockGet,
		commands.Block:     d.handleBlock,
		commands.Unblock:   d.handleUnblock,
		commands.Detail:    d.handleDetail,
		commands.GetDetail: d.handleDetail,
	}
}

// Handle executes one request. It never panics and always returns a response.
func (d *Dispatcher) Handle(ctx context.Context, req *models.Request) (resp models.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("Panic while handling %q: %v\n%s", req.Action, r, debug.Stack())
			resp = models.Fail(fmt.Sprintf("internal error: %v", r))
		}
	}()

	action, ok := commands.Parse(req.Action)
	if !ok {
		d.logger.Warnf("Unsupported action %q", req.Action)
		return models.Fail("unsupported action")
	}
	handler, ok := d.handlers[action]
	if !ok {
		return models.Fail("unsupported action")
	}

	if action.Mutates() && d.lock != nil {
		unlock, err := d.lock.Lock()
		if err != nil {
			return d.failure(action, err)
		}
		defer unlock()
	}

	start := time.Now()
	result, err := handler(ctx, req)
	if err != nil {
		return d.failure(action, err)
	}

	d.logger.Infof("Action %s completed in %s", action, time.Since(start).Round(time.Millisecond))
	return result
}

// failure converts err into an error response, naming the account when known
func (d *Dispatcher) failure(action commands.Action, err error) models.Response {
	switch {
	case apperrors.IsValidation(err), apperrors.IsNotFound(err), apperrors.IsDuplicateEmail(err), apperrors.IsParse(err):
		d.logger.Warnf("Action %s rejected: %v", action, err)
	default:
		d.logger.Errorf("Action %s failed: %v", action, err)
	}

	resp := models.Fail(err.Error())
	if username := apperrors.Username(err); username != "" {
		resp["username"] = username
	}
	return resp
}

// bestEffort logs a failed cleanup step without failing the request
func (d *Dispatcher) bestEffort(what string, err error) {
	if err != nil {
		d.logger.Warnf("Best-effort %s failed: %v", what, err)
	}
}

// account validates and normalizes the protocol and username of req
func (d *Dispatcher) account(req *models.Request) (models.Account, error) {
	protocol, err := validation.ValidateProtocol(req.Protocol)
	if err != nil {
		return models.Account{}, err
	}

	username := strings.TrimSpace(req.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return models.Account{}, err
	}

	return models.Account{Protocol: protocol, Username: username}, nil
}

// accountState derives the lifecycle state of finalUser from the live config and the blocked registry
func (d *Dispatcher) accountState(cfg *services.ProxyConfig, finalUser string) models.AccountState {
	switch {
	case cfg.EmailExists(finalUser):
		return models.Active
	case d.blocked.Exists(finalUser):
		return models.Blocked
	default:
		return models.Absent
	}
}

// restartProxy restarts the proxy daemon so it picks up the saved config
func (d *Dispatcher) restartProxy(ctx context.Context) error {
	return d.system.Restart(ctx, d.cfg.Xray.ServiceName)
}

// appendClients adds secret to every family of acct. If any family has no
// listener the entries already appended are removed again and nothing is saved.
func (d *Dispatcher) appendClients(cfg *services.ProxyConfig, acct models.Account, secret string) error {
	finalUser := acct.FinalUser()
	for _, family := range acct.Families() {
		if cfg.AppendClient(family, finalUser, secret) == 0 {
			for _, f := range acct.Families() {
				cfg.RemoveClient(f, finalUser)
			}
			return &apperrors.MissingInboundError{Protocol: family}
		}
	}
	return nil
}

// removeClients drops acct from every family and returns the removed count
func (d *Dispatcher) removeClients(cfg *services.ProxyConfig, acct models.Account) int {
	removed := 0
	for _, family := range acct.Families() {
		removed += cfg.RemoveClient(family, acct.FinalUser())
	}
	return removed
}
