package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"xray-backend/internal/config"
	"xray-backend/internal/models"
	"xray-backend/internal/services"
)

const proxyConfigFixture = `{
  "log": {"loglevel": "warning"},
  "inbounds": [
    {"tag": "vless-ws", "protocol": "vless", "port": 10001, "settings": {"clients": [], "decryption": "none"}},
    {"tag": "vless-grpc", "protocol": "vless", "port": 10002, "settings": {"clients": [], "decryption": "none"}},
    {"tag": "vmess-ws", "protocol": "vmess", "port": 10003, "settings": {"clients": []}},
    {"tag": "trojan-ws", "protocol": "trojan", "port": 10004, "settings": {"clients": []}}
  ],
  "routing": {
    "rules": [
      {"type": "field", "outboundTag": "blocked", "user": ["placeholder@vless"]}
    ]
  }
}
`

// no trojan listener
const partialProxyConfigFixture = `{
  "inbounds": [
    {"tag": "vless-ws", "protocol": "vless", "settings": {"clients": []}},
    {"tag": "vmess-ws", "protocol": "vmess", "settings": {"clients": []}}
  ]
}
`

type fakeSystem struct {
	restarts     []string
	restartErr   error
	panicOnState bool
}

func (f *fakeSystem) Restart(ctx context.Context, name string) error {
	f.restarts = append(f.restarts, name)
	return f.restartErr
}

func (f *fakeSystem) State(ctx context.Context, name string) services.ServiceState {
	if f.panicOnState {
		panic("service manager exploded")
	}
	return services.ServiceState{Name: name, Active: true, State: "active"}
}

type fakeJournal struct {
	lines     []string
	requested []int
}

func (f *fakeJournal) Tail(ctx context.Context, unit string, n int) ([]string, error) {
	f.requested = append(f.requested, n)
	if n >= len(f.lines) {
		return f.lines, nil
	}
	return f.lines[len(f.lines)-n:], nil
}

type fakeLocker struct {
	locked   int
	released int
}

func (f *fakeLocker) Lock() (func(), error) {
	f.locked++
	return func() { f.released++ }, nil
}

type fakeHost struct{}

func (fakeHost) Domain() string { return "vpn.example.com" }
func (fakeHost) PublicPort() int { return 443 }
func (fakeHost) PublicIP(ctx context.Context) string { return "203.0.113.7" }

type DispatcherTestSuite struct {
	suite.Suite
	root       string
	cfg        *config.Config
	proxy      *services.XrayConfigStore
	ledger     *services.QuotaLedger
	blocked    *services.BlockedRegistry
	sheets     *services.CredentialSheets
	system     *fakeSystem
	journal    *fakeJournal
	locker     *fakeLocker
	secrets    int
	dispatcher *Dispatcher
}

func TestDispatcherTestSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}

func (s *DispatcherTestSuite) SetupTest() {
	s.root = s.T().TempDir()
	s.cfg = &config.Config{
		Xray: config.XrayConfig{
			ConfigPath:  filepath.Join(s.root, "xray", "config.json"),
			BlockedTag:  "blocked",
			ServiceName: "xray",
		},
		Storage: config.StorageConfig{
			QuotaDir: filepath.Join(s.root, "quota"),
			SheetDir: filepath.Join(s.root, "sheets"),
		},
		Services: config.ServicesConfig{
			ReverseProxy: "nginx",
			LogUnits: map[string]string{
				"xray":    "xray",
				"nginx":   "nginx",
				"backend": "xray-backend",
			},
		},
	}
	s.writeProxyConfig(proxyConfigFixture)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	now := func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }

	store := services.NewAtomicStore(logger)
	s.sheets = services.NewCredentialSheets(s.cfg.Storage.SheetDir, fakeHost{}, nil, store, now, logger)
	s.proxy = services.NewXrayConfigStore(s.cfg.Xray, store, logger)
	s.ledger = services.NewQuotaLedger(s.cfg.Storage.QuotaDir, s.sheets, store, logger)
	s.blocked = services.NewBlockedRegistry(s.cfg.Storage.QuotaDir, store, now, logger)
	s.system = &fakeSystem{}
	s.journal = &fakeJournal{}
	s.locker = &fakeLocker{}
	s.secrets = 0

	newSecret := func() string {
		s.secrets++
		return fmt.Sprintf("00000000-0000-4000-8000-%012d", s.secrets)
	}

	s.dispatcher = NewDispatcher(Dependencies{
		Config:    s.cfg,
		Proxy:     s.proxy,
		Ledger:    s.ledger,
		Blocked:   s.blocked,
		Sheets:    s.sheets,
		Resolver:  services.NewSecretResolver(s.sheets),
		System:    s.system,
		Journal:   s.journal,
		Lock:      s.locker,
		Now:       now,
		NewSecret: newSecret,
		Logger:    logger,
	})
}

func (s *DispatcherTestSuite) writeProxyConfig(text string) {
	s.Require().NoError(os.MkdirAll(filepath.Dir(s.cfg.Xray.ConfigPath), 0o755))
	s.Require().NoError(os.WriteFile(s.cfg.Xray.ConfigPath, []byte(text), 0o644))
}

func (s *DispatcherTestSuite) do(req models.Request) models.Response {
	return s.dispatcher.Handle(context.Background(), &req)
}

func (s *DispatcherTestSuite) requireOK(resp models.Response) models.Response {
	s.Require().True(resp.IsOK(), "unexpected error: %v", resp.ErrorMessage())
	return resp
}

func (s *DispatcherTestSuite) add(protocol, username string, days, quotaGB float64) models.Response {
	return s.do(models.Request{
		Action:   "add",
		Protocol: protocol,
		Username: username,
		Days:     models.NewNumber(days),
		QuotaGB:  models.NewNumber(quotaGB),
	})
}

func (s *DispatcherTestSuite) loadProxy() *services.ProxyConfig {
	cfg, err := s.proxy.Load()
	s.Require().NoError(err)
	return cfg
}

func (s *DispatcherTestSuite) marshalProxy() string {
	out, err := s.loadProxy().Marshal()
	s.Require().NoError(err)
	return string(out)
}

func (s *DispatcherTestSuite) TestAddVless() {
	resp := s.requireOK(s.add("vless", "alice", 30, 5.0))

	s.Equal("alice@vless", resp["username"])
	s.Equal("00000000-0000-4000-8000-000000000001", resp["uuid"])
	s.NotContains(resp, "password")
	s.Equal("2025-04-09", resp["expired_at"])
	s.Equal(s.cfg.Xray.BackupPath(), resp["backup_path"])
	s.Equal(s.sheets.Path("vless", "alice@vless"), resp["detail_path"])

	record, err := s.ledger.Read("vless", "alice@vless")
	s.Require().NoError(err)
	s.Equal(int64(5368709120), record.QuotaLimit)
	s.Equal("2025-03-10", record.CreatedAt)
	s.Equal("2025-04-09", record.ExpiredAt)

	cfg := s.loadProxy()
	s.True(cfg.EmailExists("alice@vless"))
	s.Equal(2, cfg.RemoveClient("vless", "alice@vless"), "one entry per vless listener")
	s.Equal(0, cfg.RemoveClient("vmess", "alice@vless"))

	s.Equal([]string{"xray"}, s.system.restarts)
	s.Equal(1, s.locker.locked)
	s.Equal(1, s.locker.released)
}

func (s *DispatcherTestSuite) TestAddTrojanReturnsPassword() {
	resp := s.requireOK(s.add("trojan", "bob", 7, 0))

	s.Equal("00000000-0000-4000-8000-000000000001", resp["password"])
	s.NotContains(resp, "uuid")

	record, err := s.ledger.Read("trojan", "bob@trojan")
	s.Require().NoError(err)
	s.Equal(int64(0), record.QuotaLimit)
}

func (s *DispatcherTestSuite) TestAddAllProto() {
	s.requireOK(s.add("allproto", "carol", 10, 1))

	cfg := s.loadProxy()
	for _, family := range []string{"vless", "vmess", "trojan"} {
		secret, ok := cfg.ClientSecret(family, "carol@allproto")
		s.True(ok, family)
		s.Equal("00000000-0000-4000-8000-000000000001", secret)
	}

	_, err := s.ledger.Read("allproto", "carol@allproto")
	s.NoError(err)
	_, err = s.ledger.Read("vless", "carol@allproto")
	s.Error(err, "no per-family ledger record")
}

func (s *DispatcherTestSuite) TestAddDuplicateEmail() {
	s.requireOK(s.add("vmess", "dave", 30, 1))

	resp := s.add("vmess", "dave", 30, 1)
	s.False(resp.IsOK())
	s.Equal("duplicate email", resp.ErrorMessage())
	s.Equal("dave@vmess", resp["username"])
	s.Len(s.system.restarts, 1)
}

func (s *DispatcherTestSuite) TestAddValidation() {
	tests := []struct {
		req  models.Request
		want string
	}{
		{models.Request{Action: "add", Protocol: "ss", Username: "a", Days: models.NewNumber(1)}, "invalid protocol"},
		{models.Request{Action: "add", Protocol: "vless", Username: "a b", Days: models.NewNumber(1)}, "invalid username"},
		{models.Request{Action: "add", Protocol: "vless", Username: "a", Days: models.NewNumber(0)}, "days: out of range (1..3650)"},
		{models.Request{Action: "add", Protocol: "vless", Username: "a", Days: models.NewNumber(3651)}, "days: out of range (1..3650)"},
		{models.Request{Action: "add", Protocol: "vless", Username: "a", Days: models.ParseNumber("x")}, "days: must be integer"},
		{models.Request{Action: "add", Protocol: "vless", Username: "a", Days: models.NewNumber(1), QuotaGB: models.NewNumber(-1)}, "quota_gb: must be >= 0"},
		{models.Request{Action: "add", Protocol: "vless", Username: "a", Days: models.NewNumber(1), QuotaGB: models.NewNumber(1e10)}, "quota_gb: must be <= 8589934591"},
		{models.Request{Action: "add", Protocol: "vless", Username: "a", Days: models.NewNumber(1e300)}, "days: must be integer"},
	}

	for _, tt := range tests {
		resp := s.do(tt.req)
		s.False(resp.IsOK())
		s.Equal(tt.want, resp.ErrorMessage())
	}
	s.Empty(s.system.restarts)
}

func (s *DispatcherTestSuite) TestAddAllProtoMissingInboundRollsBack() {
	s.writeProxyConfig(partialProxyConfigFixture)
	before, err := os.ReadFile(s.cfg.Xray.ConfigPath)
	s.Require().NoError(err)

	resp := s.add("allproto", "erin", 30, 1)
	s.False(resp.IsOK())
	s.Equal("no matching inbound found for trojan", resp.ErrorMessage())

	after, err := os.ReadFile(s.cfg.Xray.ConfigPath)
	s.Require().NoError(err)
	s.Equal(string(before), string(after), "config is not saved")
	s.NoFileExists(s.cfg.Xray.BackupPath())

	_, err = s.ledger.Read("allproto", "erin@allproto")
	s.Error(err)
	s.Empty(s.system.restarts)

	s.requireOK(s.add("vless", "erin", 30, 1))
}

func (s *DispatcherTestSuite) TestAddThenDeleteRestoresConfig() {
	baseline := s.marshalProxy()

	s.requireOK(s.add("vless", "frank", 30, 2))
	resp := s.requireOK(s.do(models.Request{Action: "del", Protocol: "vless", Username: "frank"}))
	s.Equal(2, resp["removed"])

	s.Equal(baseline, s.marshalProxy())
	_, err := s.ledger.Read("vless", "frank@vless")
	s.Error(err)
	s.NoFileExists(s.sheets.Path("vless", "frank@vless"))

	again := s.do(models.Request{Action: "del", Protocol: "vless", Username: "frank"})
	s.False(again.IsOK())
	s.Equal("user not found", again.ErrorMessage())
	s.Equal("frank@vless", again["username"])
}

func (s *DispatcherTestSuite) TestBlockUnblockRoundTrip() {
	s.requireOK(s.add("vmess", "grace", 30, 3))
	afterAdd := s.marshalProxy()

	resp := s.requireOK(s.do(models.Request{Action: "block", Protocol: "vmess", Username: "grace"}))
	s.Equal(true, resp["blocked"])

	cfg := s.loadProxy()
	s.False(cfg.EmailExists("grace@vmess"))
	s.True(cfg.IsUserBlocked("blocked", "grace@vmess"))

	status := s.requireOK(s.do(models.Request{Action: "block_get", Protocol: "vmess", Username: "grace"}))
	s.Equal(true, status["blocked"])
	s.Equal("vmess", status["protocol"])

	// the ledger survives a block but the listing shows no active entry
	_, err := s.ledger.Read("vmess", "grace@vmess")
	s.NoError(err)
	listed := s.requireOK(s.do(models.Request{Action: "list", Protocol: "vmess"}))
	items := listed["items"].([]models.LedgerItem)
	s.Require().Len(items, 1)
	s.True(items[0].Blocked)

	resp = s.requireOK(s.do(models.Request{Action: "block", Op: "unblock", Protocol: "vmess", Username: "grace"}))
	s.Equal(false, resp["blocked"])

	s.Equal(afterAdd, s.marshalProxy())
	secret, ok := s.loadProxy().ClientSecret("vmess", "grace@vmess")
	s.True(ok)
	s.Equal("00000000-0000-4000-8000-000000000001", secret)
	s.False(s.blocked.Exists("grace@vmess"))

	status = s.requireOK(s.do(models.Request{Action: "block_get", Protocol: "vmess", Username: "grace"}))
	s.Equal(false, status["blocked"])
	s.Len(s.system.restarts, 3)

	listed = s.requireOK(s.do(models.Request{Action: "list", Protocol: "vmess"}))
	s.False(listed["items"].([]models.LedgerItem)[0].Blocked)
}

func (s *DispatcherTestSuite) TestBlockUnblockAllProtoRestoresEveryFamily() {
	s.requireOK(s.add("allproto", "mallory", 30, 1))
	afterAdd := s.marshalProxy()

	s.requireOK(s.do(models.Request{Action: "block", Protocol: "allproto", Username: "mallory"}))
	cfg := s.loadProxy()
	for _, family := range []string{"vless", "vmess", "trojan"} {
		_, ok := cfg.ClientSecret(family, "mallory@allproto")
		s.False(ok, family)
	}

	s.requireOK(s.do(models.Request{Action: "unblock", Protocol: "allproto", Username: "mallory"}))

	cfg = s.loadProxy()
	for _, family := range []string{"vless", "vmess", "trojan"} {
		secret, ok := cfg.ClientSecret(family, "mallory@allproto")
		s.True(ok, family)
		s.Equal("00000000-0000-4000-8000-000000000001", secret, family)
	}
	s.Equal(afterAdd, s.marshalProxy())
	s.False(s.blocked.Exists("mallory@allproto"))
}

func (s *DispatcherTestSuite) TestUnblockMissingInboundKeepsBlockedRecord() {
	s.requireOK(s.add("allproto", "nina", 30, 1))
	s.requireOK(s.do(models.Request{Action: "block", Protocol: "allproto", Username: "nina"}))
	restarts := len(s.system.restarts)

	// the trojan listener disappeared while the account was blocked
	s.writeProxyConfig(partialProxyConfigFixture)
	before, err := os.ReadFile(s.cfg.Xray.ConfigPath)
	s.Require().NoError(err)

	resp := s.do(models.Request{Action: "unblock", Protocol: "allproto", Username: "nina"})
	s.False(resp.IsOK())
	s.Equal("no matching inbound found for trojan", resp.ErrorMessage())

	after, err := os.ReadFile(s.cfg.Xray.ConfigPath)
	s.Require().NoError(err)
	s.Equal(string(before), string(after), "config is not saved")
	s.False(s.loadProxy().EmailExists("nina@allproto"))

	s.True(s.blocked.Exists("nina@allproto"))
	secret, err := s.blocked.ReadSecret("nina@allproto")
	s.Require().NoError(err)
	s.Equal("00000000-0000-4000-8000-000000000001", secret)
	s.Len(s.system.restarts, restarts)
}

func (s *DispatcherTestSuite) TestUnblockRestartFailureClearsBlockedRecord() {
	s.requireOK(s.add("vless", "oscar", 30, 1))
	s.requireOK(s.do(models.Request{Action: "block", Protocol: "vless", Username: "oscar"}))
	s.system.restartErr = errors.New("unit xray.service not found")

	resp := s.do(models.Request{Action: "unblock", Protocol: "vless", Username: "oscar"})
	s.False(resp.IsOK())
	s.Contains(resp.ErrorMessage(), "unit xray.service not found")

	// the saved config already holds the client again
	s.True(s.loadProxy().EmailExists("oscar@vless"))
	s.False(s.blocked.Exists("oscar@vless"))

	s.system.restartErr = nil
	status := s.requireOK(s.do(models.Request{Action: "block_get", Protocol: "vless", Username: "oscar"}))
	s.Equal(false, status["blocked"])
	s.requireOK(s.do(models.Request{Action: "block", Protocol: "vless", Username: "oscar"}))
}

func (s *DispatcherTestSuite) TestBlockNeedsSheetSecret() {
	s.requireOK(s.add("vless", "heidi", 30, 1))
	s.Require().NoError(os.Remove(s.sheets.Path("vless", "heidi@vless")))
	before := s.marshalProxy()

	resp := s.do(models.Request{Action: "block", Protocol: "vless", Username: "heidi"})
	s.False(resp.IsOK())
	s.Contains(resp.ErrorMessage(), "detail file not found")
	s.Equal(before, s.marshalProxy())
	s.False(s.blocked.Exists("heidi@vless"))
}

func (s *DispatcherTestSuite) TestBlockUnknownAccount() {
	resp := s.do(models.Request{Action: "block", Protocol: "vless", Username: "nobody"})
	s.Equal("user not found", resp.ErrorMessage())

	resp = s.do(models.Request{Action: "block", Op: "freeze", Protocol: "vless", Username: "nobody"})
	s.Equal("op: invalid op (block/unblock)", resp.ErrorMessage())

	resp = s.do(models.Request{Action: "unblock", Protocol: "vless", Username: "nobody"})
	s.Equal("blocked record not found", resp.ErrorMessage())
}

func (s *DispatcherTestSuite) TestUnblockAlreadyPresent() {
	s.requireOK(s.add("vless", "ivan", 30, 1))
	s.Require().NoError(s.blocked.Write("ivan@vless", "vless", "00000000-0000-4000-8000-000000000001"))
	restarts := len(s.system.restarts)

	resp := s.requireOK(s.do(models.Request{Action: "unblock", Protocol: "vless", Username: "ivan"}))
	s.Equal("already present in config", resp["note"])
	s.False(s.blocked.Exists("ivan@vless"))
	s.Len(s.system.restarts, restarts)
}

func (s *DispatcherTestSuite) TestAddWhileBlockedIsDuplicate() {
	s.requireOK(s.add("vless", "judy", 30, 1))
	s.requireOK(s.do(models.Request{Action: "block", Protocol: "vless", Username: "judy"}))

	resp := s.add("vless", "judy", 30, 1)
	s.Equal("duplicate email", resp.ErrorMessage())
}

func (s *DispatcherTestSuite) TestDeleteBlockedAccount() {
	s.requireOK(s.add("trojan", "kim", 30, 1))
	s.requireOK(s.do(models.Request{Action: "block", Protocol: "trojan", Username: "kim"}))

	resp := s.requireOK(s.do(models.Request{Action: "del", Protocol: "trojan", Username: "kim"}))
	s.Equal(0, resp["removed"])

	s.False(s.blocked.Exists("kim@trojan"))
	s.False(s.loadProxy().IsUserBlocked("blocked", "kim@trojan"))
	_, err := s.ledger.Read("trojan", "kim@trojan")
	s.Error(err)

	again := s.do(models.Request{Action: "del", Protocol: "trojan", Username: "kim"})
	s.Equal("user not found", again.ErrorMessage())
}

func (s *DispatcherTestSuite) TestRenew() {
	s.requireOK(s.add("vless", "leo", 30, 1))

	resp := s.requireOK(s.do(models.Request{Action: "renew", Protocol: "vless", Username: "leo", AddDays: models.ParseNumber("10")}))
	s.Equal("2025-04-19", resp["expired_at"])

	record, err := s.ledger.Read("vless", "leo@vless")
	s.Require().NoError(err)
	s.Equal("2025-04-19", record.ExpiredAt)
	s.Equal("2025-03-10", record.CreatedAt)

	text, err := s.sheets.Read("vless", "leo@vless")
	s.Require().NoError(err)
	s.Contains(text, "Expired    : 40 Days")
	s.Contains(text, "ValidUntil : 2025-04-19")
	s.Contains(text, "00000000-0000-4000-8000-000000000001")

	bad := s.do(models.Request{Action: "renew", Protocol: "vless", Username: "leo", AddDays: models.NewNumber(0)})
	s.Equal("add_days: out of range (1..3650)", bad.ErrorMessage())

	missing := s.do(models.Request{Action: "renew", Protocol: "vless", Username: "nobody", AddDays: models.NewNumber(1)})
	s.Equal("quota metadata not found", missing.ErrorMessage())
	s.Equal("nobody@vless", missing["username"])
}

func (s *DispatcherTestSuite) TestRenewLeavesLedgerWhenSheetMissing() {
	s.requireOK(s.add("vless", "mia", 30, 1))
	s.Require().NoError(os.Remove(s.sheets.Path("vless", "mia@vless")))

	resp := s.do(models.Request{Action: "renew", Protocol: "vless", Username: "mia", AddDays: models.NewNumber(5)})
	s.False(resp.IsOK())

	record, err := s.ledger.Read("vless", "mia@vless")
	s.Require().NoError(err)
	s.Equal("2025-04-09", record.ExpiredAt)
}

func (s *DispatcherTestSuite) TestQuotaSetAndGet() {
	s.requireOK(s.add("vless", "alice", 30, 5))

	resp := s.requireOK(s.do(models.Request{Action: "quota_set", Protocol: "vless", Username: "alice", QuotaGB: models.NewNumber(0)}))
	s.Equal(int64(0), resp["quota_limit"])

	text, err := s.sheets.Read("vless", "alice@vless")
	s.Require().NoError(err)
	s.Contains(text, "QuotaLimit : Unlimited")

	got := s.requireOK(s.do(models.Request{Action: "quota_get", Protocol: "vless", Username: "alice"}))
	s.Equal(int64(0), got["quota_limit"])
	s.Equal(0.0, got["quota_gb"])
	s.Equal("2025-04-09", got["expired_at"])
	s.Equal("2025-03-10", got["created_at"])

	s.requireOK(s.do(models.Request{Action: "quota_set", Protocol: "vless", Username: "alice", QuotaGB: models.ParseNumber("2.5")}))
	got = s.requireOK(s.do(models.Request{Action: "quota_get", Protocol: "vless", Username: "alice"}))
	s.Equal(int64(2684354560), got["quota_limit"])
}

func (s *DispatcherTestSuite) TestDetailFallsBackToConfig() {
	s.requireOK(s.add("allproto", "nina", 30, 1))
	s.Require().NoError(os.Remove(s.sheets.Path("allproto", "nina@allproto")))

	resp := s.requireOK(s.do(models.Request{Action: "get_detail", Protocol: "allproto", Username: "nina"}))
	s.Contains(resp["text"], "UUID/Pass  : 00000000-0000-4000-8000-000000000001")
	s.FileExists(s.sheets.Path("allproto", "nina@allproto"))

	missing := s.do(models.Request{Action: "detail", Protocol: "vless", Username: "nina"})
	s.Equal("quota metadata not found", missing.ErrorMessage())
}

func (s *DispatcherTestSuite) TestListPagination() {
	s.requireOK(s.add("vless", "a1", 10, 1))
	s.requireOK(s.add("vmess", "a2", 20, 1))
	s.requireOK(s.add("trojan", "a3", 30, 1))

	resp := s.requireOK(s.do(models.Request{Action: "list", Limit: models.NewNumber(2)}))
	s.Equal("all", resp["protocol"])
	s.Equal(3, resp["total"])
	s.Equal(true, resp["has_more"])
	items := resp["items"].([]models.LedgerItem)
	s.Require().Len(items, 2)
	s.Equal("a1@vless", items[0].Username)
	s.Equal("a2@vmess", items[1].Username)

	resp = s.requireOK(s.do(models.Request{Action: "list", Limit: models.NewNumber(2), Offset: models.NewNumber(2)}))
	s.Equal(false, resp["has_more"])
	s.Len(resp["items"], 1)

	resp = s.requireOK(s.do(models.Request{Action: "list", Protocol: "vmess"}))
	s.Equal(1, resp["total"])
	s.Equal(25, resp["limit"])

	bad := s.do(models.Request{Action: "list", Protocol: "ss"})
	s.Equal("invalid protocol", bad.ErrorMessage())
}

func (s *DispatcherTestSuite) TestLogsPaging() {
	for i := 1; i <= 60; i++ {
		s.journal.lines = append(s.journal.lines, fmt.Sprintf("line-%02d", i))
	}

	page0 := s.requireOK(s.do(models.Request{Action: "logs", Unit: "xray"}))
	s.Equal(true, page0["has_more"])
	s.Equal(25, page0["page_size"])
	s.Equal(expectedLines(36, 60), page0["text"])

	page1 := s.requireOK(s.do(models.Request{Action: "logs", Service: "xray", Page: models.NewNumber(1)}))
	s.Equal(expectedLines(11, 35), page1["text"])

	page2 := s.requireOK(s.do(models.Request{Action: "logs", Page: models.NewNumber(2)}))
	s.Equal(false, page2["has_more"])
	s.Equal(expectedLines(1, 10), page2["text"])

	page5 := s.requireOK(s.do(models.Request{Action: "logs", Page: models.NewNumber(5)}))
	s.Equal("", page5["text"])

	s.Equal([]int{25, 50, 75, 150}, s.journal.requested)

	backend := s.requireOK(s.do(models.Request{Action: "logs", Unit: "backend", PageSize: models.NewNumber(1)}))
	s.Equal("xray-backend", backend["unit"])
	s.Equal(5, backend["page_size"])

	bad := s.do(models.Request{Action: "logs", Unit: "sshd"})
	s.Equal("unit: not allowed", bad.ErrorMessage())
}

func (s *DispatcherTestSuite) TestLogsHugePageIsClamped() {
	for i := 1; i <= 60; i++ {
		s.journal.lines = append(s.journal.lines, fmt.Sprintf("line-%02d", i))
	}

	resp := s.requireOK(s.do(models.Request{Action: "logs", Page: models.NewNumber(2e17), PageSize: models.NewNumber(80)}))
	s.Equal(1249, resp["page"])
	s.Equal("", resp["text"])
	s.Equal(false, resp["has_more"])
	s.Equal([]int{100000}, s.journal.requested)

	resp = s.requireOK(s.do(models.Request{Action: "logs", Page: models.ParseNumber("200000000000000000")}))
	s.Equal(3999, resp["page"])
	s.Equal("", resp["text"])
	s.Equal([]int{100000, 100000}, s.journal.requested)
}

func expectedLines(from, to int) string {
	text := ""
	for i := from; i <= to; i++ {
		if i > from {
			text += "\n"
		}
		text += fmt.Sprintf("line-%02d", i)
	}
	return text
}

func (s *DispatcherTestSuite) TestStatusAndPing() {
	s.requireOK(s.do(models.Request{Action: "ping"}))

	resp := s.requireOK(s.do(models.Request{Action: "status"}))
	s.Equal(services.ServiceState{Name: "xray", Active: true, State: "active"}, resp["xray"])
	s.Equal(services.ServiceState{Name: "nginx", Active: true, State: "active"}, resp["nginx"])
	s.Zero(s.locker.locked, "read-only actions do not take the lock")
}

func (s *DispatcherTestSuite) TestUnsupportedAction() {
	resp := s.do(models.Request{Action: "reboot"})
	s.Equal("unsupported action", resp.ErrorMessage())
}

func (s *DispatcherTestSuite) TestPanicBecomesErrorResponse() {
	s.system.panicOnState = true

	resp := s.do(models.Request{Action: "status"})
	s.False(resp.IsOK())
	s.Contains(resp.ErrorMessage(), "service manager exploded")
}

func (s *DispatcherTestSuite) TestRestartFailureIsReported() {
	s.system.restartErr = errors.New("unit xray.service not found")

	resp := s.add("vless", "olga", 30, 1)
	s.False(resp.IsOK())
	s.Contains(resp.ErrorMessage(), "unit xray.service not found")

	// the config was saved before the restart was attempted
	s.True(s.loadProxy().EmailExists("olga@vless"))
}
