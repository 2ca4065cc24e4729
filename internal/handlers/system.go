package handlers

import (
	"context"
	"strings"

	"xray-backend/internal/constants"
	apperrors "xray-backend/internal/errors"
	"xray-backend/internal/models"
	"xray-backend/internal/services"
	"xray-backend/internal/validation"
)

func (d *Dispatcher) handlePing(ctx context.Context, req *models.Request) (models.Response, error) {
	return models.OK(nil), nil
}

// handleStatus reports the proxy daemon and reverse proxy states
func (d *Dispatcher) handleStatus(ctx context.Context, req *models.Request) (models.Response, error) {
	return models.OK(map[string]any{
		"xray":  d.system.State(ctx, d.cfg.Xray.ServiceName),
		"nginx": d.system.State(ctx, d.cfg.Services.ReverseProxy),
	}), nil
}

// handleList returns one page of the ledger
func (d *Dispatcher) handleList(ctx context.Context, req *models.Request) (models.Response, error) {
	filter, err := validation.ValidateProtocolFilter(req.Protocol)
	if err != nil {
		return nil, err
	}

	items, err := d.ledger.Scan(filter)
	if err != nil {
		return nil, err
	}

	page := services.Paginate(items, req.Limit.IntOr(constants.DefaultListLimit), req.Offset.IntOr(0))
	for i := range page.Items {
		page.Items[i].Blocked = d.blocked.Exists(page.Items[i].Username)
	}
	return models.OK(map[string]any{
		"protocol": filter,
		"offset":   page.Offset,
		"limit":    page.Limit,
		"total":    page.Total,
		"has_more": page.HasMore,
		"items":    page.Items,
	}), nil
}

// handleLogs returns one page of journal lines; page 0 is the newest
func (d *Dispatcher) handleLogs(ctx context.Context, req *models.Request) (models.Response, error) {
	unit, err := d.resolveUnit(req)
	if err != nil {
		return nil, err
	}
	page, pageSize := validation.ClampLogWindow(req.Page.IntOr(0), req.PageSize.IntOr(constants.DefaultLogPageSize))

	n := (page + 1) * pageSize
	lines, err := d.journal.Tail(ctx, unit, n)
	if err != nil {
		return nil, err
	}

	end := len(lines) - page*pageSize
	if end < 0 {
		end = 0
	}
	start := end - pageSize
	if start < 0 {
		start = 0
	}

	return models.OK(map[string]any{
		"unit":      unit,
		"page":      page,
		"page_size": pageSize,
		"has_more":  len(lines) == n,
		"text":      strings.Join(lines[start:end], "\n"),
	}), nil
}

// resolveUnit maps a unit alias to its allow-listed unit name
func (d *Dispatcher) resolveUnit(req *models.Request) (string, error) {
	name := strings.ToLower(strings.TrimSpace(req.Unit))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(req.Service))
	}
	if name == "" {
		name = d.cfg.Xray.ServiceName
	}

	if unit, ok := d.cfg.Services.LogUnits[name]; ok {
		return unit, nil
	}
	return "", &apperrors.ValidationError{Field: "unit", Message: "not allowed"}
}
