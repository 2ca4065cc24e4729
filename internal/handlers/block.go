package handlers

import (
	"context"
	"strings"

	"xray-backend/internal/commands"
	apperrors "xray-backend/internal/errors"
	"xray-backend/internal/models"
)

// handleBlockGet reports whether an account is blocked
func (d *Dispatcher) handleBlockGet(ctx context.Context, req *models.Request) (models.Response, error) {
	acct, err := d.account(req)
	if err != nil {
		return nil, err
	}

	status := d.blocked.Get(acct.FinalUser())
	resp := models.OK(map[string]any{
		"username": acct.FinalUser(),
		"blocked":  status.Blocked,
	})
	if status.BlockedAt != "" {
		resp["blocked_at"] = status.BlockedAt
	}
	if status.Protocol != "" {
		resp["protocol"] = status.Protocol
	}
	return resp, nil
}

// handleBlock dispatches on op, which defaults to block
func (d *Dispatcher) handleBlock(ctx context.Context, req *models.Request) (models.Response, error) {
	op := strings.ToLower(strings.TrimSpace(req.Op))
	if op == "" {
		op = strings.ToLower(strings.TrimSpace(req.Mode))
	}

	switch op {
	case "", commands.OpBlock:
		return d.blockAccount(ctx, req)
	case commands.OpUnblock:
		return d.unblockAccount(ctx, req)
	default:
		return nil, &apperrors.ValidationError{Field: "op", Message: "invalid op (block/unblock)"}
	}
}

// handleUnblock restores a blocked account
func (d *Dispatcher) handleUnblock(ctx context.Context, req *models.Request) (models.Response, error) {
	return d.unblockAccount(ctx, req)
}

// blockAccount moves the secret of an active account into custody and removes its clients
func (d *Dispatcher) blockAccount(ctx context.Context, req *models.Request) (models.Response, error) {
	acct, err := d.account(req)
	if err != nil {
		return nil, err
	}
	finalUser := acct.FinalUser()

	cfg, err := d.proxy.Load()
	if err != nil {
		return nil, err
	}
	if d.accountState(cfg, finalUser) != models.Active {
		return nil, &apperrors.NotFoundError{What: "user", Username: finalUser}
	}

	// Once the clients are gone the config can no longer supply the secret
	secret, err := d.resolver.FromSheet(acct.Protocol, finalUser)
	if err != nil {
		return nil, err
	}

	if d.removeClients(cfg, acct) == 0 {
		return nil, &apperrors.NotFoundError{What: "user", Username: finalUser}
	}
	cfg.BlockUser(d.cfg.Xray.BlockedTag, finalUser)
	if !cfg.IsUserBlocked(d.cfg.Xray.BlockedTag, finalUser) {
		d.logger.Debugf("No routing rule for outbound %q, %s blocked by removal only", d.cfg.Xray.BlockedTag, finalUser)
	}

	if err := d.blocked.Write(finalUser, acct.Protocol, secret); err != nil {
		return nil, err
	}

	backupPath, err := d.proxy.SaveWithBackup(cfg)
	if err != nil {
		d.bestEffort("blocked record rollback", d.blocked.Remove(finalUser))
		return nil, err
	}

	if err := d.restartProxy(ctx); err != nil {
		return nil, err
	}

	d.logger.Infof("Blocked account %s", finalUser)

	return models.OK(map[string]any{
		"username":    finalUser,
		"blocked":     true,
		"backup_path": backupPath,
	}), nil
}

// unblockAccount re-appends the preserved secret of a blocked account
func (d *Dispatcher) unblockAccount(ctx context.Context, req *models.Request) (models.Response, error) {
	acct, err := d.account(req)
	if err != nil {
		return nil, err
	}
	finalUser := acct.FinalUser()

	secret, err := d.blocked.ReadSecret(finalUser)
	if err != nil {
		return nil, err
	}

	cfg, err := d.proxy.Load()
	if err != nil {
		return nil, err
	}

	if d.accountState(cfg, finalUser) == models.Active {
		d.bestEffort("blocked record removal", d.blocked.Remove(finalUser))
		return models.OK(map[string]any{
			"username": finalUser,
			"blocked":  false,
			"note":     "already present in config",
		}), nil
	}

	if err := d.appendClients(cfg, acct, secret); err != nil {
		return nil, err
	}
	cfg.UnblockUser(d.cfg.Xray.BlockedTag, finalUser)

	backupPath, err := d.proxy.SaveWithBackup(cfg)
	if err != nil {
		return nil, err
	}

	// The client is back in the saved config, so the account is active even if the restart fails
	d.bestEffort("blocked record removal", d.blocked.Remove(finalUser))

	if err := d.restartProxy(ctx); err != nil {
		return nil, err
	}

	d.logger.Infof("Unblocked account %s", finalUser)

	return models.OK(map[string]any{
		"username":    finalUser,
		"blocked":     false,
		"backup_path": backupPath,
	}), nil
}
