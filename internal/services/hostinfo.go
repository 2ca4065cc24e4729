package services

import (
	"context"
	"net"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"xray-backend/internal/config"
	"xray-backend/internal/constants"
)

var (
	serverNameRe = regexp.MustCompile(`(?m)^\s*server_name\s+([^;]+);`)
	listenRe     = regexp.MustCompile(`(?m)^\s*listen\s+([^;]+);`)
	hostPortRe   = regexp.MustCompile(`:(\d{2,5})\b`)
	barePortRe   = regexp.MustCompile(`\b(\d{2,5})\b`)
	sslRe        = regexp.MustCompile(`\bssl\b`)
)

const publicIPCacheKey = "public_ip"

// HostInfoService scrapes the reverse-proxy config and looks up the public IP
type HostInfoService struct {
	nginxConfPath string
	defaultPort   int
	ipURLs        []string
	lookupBudget  time.Duration
	httpClient    *resty.Client
	ipCache       *cache.Cache
	logger        *logrus.Logger
}

// NewHostInfoService creates a new host metadata service
func NewHostInfoService(cfg config.HostConfig, logger *logrus.Logger) *HostInfoService {
	httpClient := resty.New().
		SetTimeout(constants.PublicIPTimeout*time.Second).
		SetHeader("User-Agent", "xray-backend/1.0")

	return &HostInfoService{
		nginxConfPath: cfg.NginxConfPath,
		defaultPort:   cfg.DefaultPort,
		ipURLs:        cfg.PublicIPURLs,
		lookupBudget:  constants.PublicIPTimeout * time.Second,
		httpClient:    httpClient,
		ipCache:       cache.New(constants.CacheExpiration*time.Minute, constants.CacheCleanupInterval*time.Minute),
		logger:        logger,
	}
}

// readConf returns the reverse-proxy config text, or "" when unreadable
func (s *HostInfoService) readConf() string {
	data, err := os.ReadFile(s.nginxConfPath)
	if err != nil {
		s.logger.Debugf("Reverse proxy config unavailable: %v", err)
		return ""
	}
	return string(data)
}

// Domain returns the first server_name of the reverse-proxy config
func (s *HostInfoService) Domain() string {
	return ParseServerName(s.readConf())
}

// PublicPort returns the first ssl listen port, else the first plain one, else the default
func (s *HostInfoService) PublicPort() int {
	if port, ok := ParseListenPort(s.readConf()); ok {
		return port
	}
	return s.defaultPort
}

// PublicIP returns the cached public address, querying the lookup services on a miss.
// All lookups together share one deadline.
func (s *HostInfoService) PublicIP(ctx context.Context) string {
	if ip, found := s.ipCache.Get(publicIPCacheKey); found {
		return ip.(string)
	}

	ctx, cancel := context.WithTimeout(ctx, s.lookupBudget)
	defer cancel()

	for _, url := range s.ipURLs {
		if ctx.Err() != nil {
			s.logger.Debugf("Public IP lookup gave up: %v", ctx.Err())
			break
		}
		resp, err := s.httpClient.R().SetContext(ctx).Get(url)
		if err != nil {
			s.logger.Debugf("Public IP lookup via %s failed: %v", url, err)
			continue
		}
		if resp.StatusCode() != http.StatusOK {
			s.logger.Debugf("Public IP lookup via %s returned status %d", url, resp.StatusCode())
			continue
		}
		ip := strings.TrimSpace(string(resp.Body()))
		if len(ip) > constants.MaxPublicIPLen || net.ParseIP(ip) == nil {
			continue
		}
		s.ipCache.Set(publicIPCacheKey, ip, cache.DefaultExpiration)
		return ip
	}

	if ip := firstInterfaceIP(); ip != "" {
		return ip
	}
	return constants.UnknownHostInfo
}

// ParseServerName extracts the first server_name value from nginx config text
func ParseServerName(conf string) string {
	m := serverNameRe.FindStringSubmatch(conf)
	if m == nil {
		return constants.UnknownHostInfo
	}
	fields := strings.Fields(m[1])
	if len(fields) == 0 {
		return constants.UnknownHostInfo
	}
	return fields[0]
}

// ParseListenPort picks the public port from nginx listen directives, preferring ssl listeners
func ParseListenPort(conf string) (int, bool) {
	var sslPorts, plainPorts []int
	for _, m := range listenRe.FindAllStringSubmatch(conf, -1) {
		port, ok := extractPort(m[1])
		if !ok {
			continue
		}
		if sslRe.MatchString(m[1]) {
			sslPorts = append(sslPorts, port)
		} else {
			plainPorts = append(plainPorts, port)
		}
	}
	if len(sslPorts) > 0 {
		return sslPorts[0], true
	}
	if len(plainPorts) > 0 {
		return plainPorts[0], true
	}
	return 0, false
}

func extractPort(listen string) (int, bool) {
	for _, re := range []*regexp.Regexp{hostPortRe, barePortRe} {
		m := re.FindStringSubmatch(listen)
		if m == nil {
			continue
		}
		if p, err := strconv.Atoi(m[1]); err == nil && p >= 1 && p <= 65535 {
			return p, true
		}
	}
	return 0, false
}

// firstInterfaceIP returns the first global unicast IPv4 address of the host
func firstInterfaceIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.To4() == nil || !ipNet.IP.IsGlobalUnicast() {
			continue
		}
		return ipNet.IP.String()
	}
	return ""
}
