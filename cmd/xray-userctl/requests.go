package main

import (
	"fmt"
	"strings"

	"xray-backend/internal/commands"
	"xray-backend/internal/models"
)

// windowFlags carries the paging flags of list and logs
type windowFlags struct {
	limit    string
	offset   string
	page     string
	pageSize string
}

// subcommand describes the positional arguments of one CLI command
type subcommand struct {
	action commands.Action
	op     string
	args   []string
	// optional positional arguments may be omitted from the end
	optional int
}

var subcommands = map[string]subcommand{
	"ping":      {action: commands.Ping},
	"status":    {action: commands.Status},
	"list":      {action: commands.List, args: []string{"protocol"}, optional: 1},
	"logs":      {action: commands.Logs, args: []string{"unit"}, optional: 1},
	"add":       {action: commands.Add, args: []string{"protocol", "username", "days", "quota_gb"}},
	"del":       {action: commands.Delete, args: []string{"protocol", "username"}},
	"renew":     {action: commands.Renew, args: []string{"protocol", "username", "add_days"}},
	"quota-get": {action: commands.QuotaGet, args: []string{"protocol", "username"}},
	"quota-set": {action: commands.QuotaSet, args: []string{"protocol", "username", "quota_gb"}},
	"block-get": {action: commands.BlockGet, args: []string{"protocol", "username"}},
	"block":     {action: commands.Block, op: commands.OpBlock, args: []string{"protocol", "username"}},
	"unblock":   {action: commands.Unblock, args: []string{"protocol", "username"}},
	"detail":    {action: commands.Detail, args: []string{"protocol", "username"}},
}

// buildRequest turns a command line into a request
func buildRequest(args []string, window windowFlags) (*models.Request, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing command")
	}

	name := strings.ToLower(args[0])
	sub, ok := subcommands[name]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", args[0])
	}

	values := args[1:]
	minArgs := len(sub.args) - sub.optional
	if len(values) < minArgs || len(values) > len(sub.args) {
		return nil, fmt.Errorf("usage: %s %s", name, usageArgs(sub))
	}

	req := &models.Request{Action: string(sub.action), Op: sub.op}
	for i, value := range values {
		switch sub.args[i] {
		case "protocol":
			req.Protocol = value
		case "username":
			req.Username = value
		case "unit":
			req.Unit = value
		case "days":
			req.Days = models.ParseNumber(value)
		case "add_days":
			req.AddDays = models.ParseNumber(value)
		case "quota_gb":
			req.QuotaGB = models.ParseNumber(value)
		}
	}

	switch sub.action {
	case commands.List:
		if window.limit != "" {
			req.Limit = models.ParseNumber(window.limit)
		}
		if window.offset != "" {
			req.Offset = models.ParseNumber(window.offset)
		}
	case commands.Logs:
		if window.page != "" {
			req.Page = models.ParseNumber(window.page)
		}
		if window.pageSize != "" {
			req.PageSize = models.ParseNumber(window.pageSize)
		}
	}

	return req, nil
}

func usageArgs(sub subcommand) string {
	parts := make([]string, len(sub.args))
	for i, a := range sub.args {
		if i >= len(sub.args)-sub.optional {
			parts[i] = "[" + a + "]"
		} else {
			parts[i] = "<" + a + ">"
		}
	}
	return strings.Join(parts, " ")
}
