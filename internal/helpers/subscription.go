package helpers

import (
	"fmt"
	"strings"

	"xray-backend/internal/constants"
)

// SheetInfo carries everything printed on a credential sheet
type SheetInfo struct {
	Protocol   string
	FinalUser  string
	Secret     string
	Domain     string
	IP         string
	Port       int
	QuotaGB    float64
	Days       int
	ValidUntil string
	Created    string
}

// FormatCredentialSheet renders the human-readable account summary.
// The "UUID/Pass" line is parsed back when the secret has to be recovered.
func FormatCredentialSheet(info SheetInfo) string {
	rule := strings.Repeat("=", constants.SheetWidth)
	thin := strings.Repeat("-", constants.SheetWidth)

	var sb strings.Builder
	sb.WriteString(rule + "\n")
	sb.WriteString(center(fmt.Sprintf("XRAY ACCOUNT DETAIL (%s)", info.Protocol), constants.SheetWidth) + "\n")
	sb.WriteString(rule + "\n")
	sb.WriteString(fmt.Sprintf("Domain     : %s\n", info.Domain))
	sb.WriteString(fmt.Sprintf("IP         : %s\n", info.IP))
	sb.WriteString(fmt.Sprintf("Username   : %s\n", info.FinalUser))
	sb.WriteString(fmt.Sprintf("%-10s : %s\n", constants.SheetSecretKey, info.Secret))
	sb.WriteString(fmt.Sprintf("QuotaLimit : %s\n", FormatQuotaGB(info.QuotaGB)))
	sb.WriteString(fmt.Sprintf("Expired    : %d Days\n", info.Days))
	sb.WriteString(fmt.Sprintf("ValidUntil : %s\n", info.ValidUntil))
	sb.WriteString(fmt.Sprintf("Created    : %s\n", info.Created))
	sb.WriteString(rule + "\n")

	families := []string{info.Protocol}
	if info.Protocol == constants.ProtocolAllProto {
		families = constants.RealProtocols
	}

	for i, family := range families {
		if i > 0 {
			sb.WriteString(thin + "\n")
		}
		sb.WriteString("[" + strings.ToUpper(family) + "]\n")
		for _, link := range BuildLinks(family, info.Domain, info.Port, info.FinalUser, info.Secret) {
			sb.WriteString(fmt.Sprintf("%-10s: %s\n", link.Label, link.URL))
		}
	}

	sb.WriteString(thin + "\n")
	sb.WriteString(rule + "\n")
	return sb.String()
}

// PrimaryLink returns the first share link of an account, used for its QR code
func PrimaryLink(info SheetInfo) string {
	family := info.Protocol
	if family == constants.ProtocolAllProto {
		family = constants.ProtocolVless
	}
	links := BuildLinks(family, info.Domain, info.Port, info.FinalUser, info.Secret)
	if len(links) == 0 {
		return ""
	}
	return links[0].URL
}

// center pads s on both sides to width
func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	left := (width - len(s)) / 2
	right := width - len(s) - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}
