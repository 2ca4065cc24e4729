package helpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"xray-backend/internal/constants"
)

// Link is one labelled client share link
type Link struct {
	Label string
	URL   string
}

// transport describes one public endpoint exposed by the reverse proxy
type transport struct {
	label   string
	network string
	path    string
}

// publicTransports returns the reverse-proxy endpoints of a protocol
func publicTransports(protocol string) []transport {
	return []transport{
		{label: "WebSocket", network: "ws", path: "/" + protocol + "-ws"},
		{label: "HTTPUpgrade", network: "httpupgrade", path: "/" + protocol + "-hu"},
		{label: "gRPC", network: "grpc", path: protocol + "-grpc"},
	}
}

// vmessShare is the base64-encoded vmess:// payload; field order matters to some clients
type vmessShare struct {
	V    string `json:"v"`
	PS   string `json:"ps"`
	Add  string `json:"add"`
	Port string `json:"port"`
	ID   string `json:"id"`
	Aid  string `json:"aid"`
	Scy  string `json:"scy"`
	Net  string `json:"net"`
	Type string `json:"type"`
	Host string `json:"host"`
	Path string `json:"path"`
	TLS  string `json:"tls"`
	SNI  string `json:"sni"`
}

// BuildLinks returns share links for one real protocol family
func BuildLinks(protocol, domain string, port int, email, secret string) []Link {
	var links []Link
	for _, t := range publicTransports(protocol) {
		var link string
		switch protocol {
		case constants.ProtocolVless:
			link = fmt.Sprintf("vless://%s@%s:%d?security=tls&encryption=none&%s#%s",
				secret, domain, port, transportQuery(t), url.QueryEscape(email))
		case constants.ProtocolTrojan:
			link = fmt.Sprintf("trojan://%s@%s:%d?security=tls&%s#%s",
				secret, domain, port, transportQuery(t), url.QueryEscape(email))
		case constants.ProtocolVmess:
			link = vmessLink(t, domain, port, email, secret)
		default:
			continue
		}
		links = append(links, Link{Label: t.label, URL: link})
	}
	return links
}

// transportQuery renders the type/path query of a vless or trojan link
func transportQuery(t transport) string {
	if t.network == "grpc" {
		return fmt.Sprintf("type=grpc&serviceName=%s&mode=gun", t.path)
	}
	return fmt.Sprintf("type=%s&path=%s", t.network, url.QueryEscape(t.path))
}

func vmessLink(t transport, domain string, port int, email, secret string) string {
	share := vmessShare{
		V:    "2",
		PS:   email,
		Add:  domain,
		Port: strconv.Itoa(port),
		ID:   secret,
		Aid:  "0",
		Scy:  "auto",
		Net:  t.network,
		Type: "none",
		Host: domain,
		Path: t.path,
		TLS:  "tls",
		SNI:  domain,
	}
	raw, err := json.Marshal(share)
	if err != nil {
		return ""
	}
	return "vmess://" + base64.StdEncoding.EncodeToString(raw)
}
