package handlers

import (
	"context"
	"strings"

	"xray-backend/internal/constants"
	apperrors "xray-backend/internal/errors"
	"xray-backend/internal/helpers"
	"xray-backend/internal/models"
	"xray-backend/internal/services"
	"xray-backend/internal/validation"
)

// handleAdd provisions a new account with a fresh secret
func (d *Dispatcher) handleAdd(ctx context.Context, req *models.Request) (models.Response, error) {
	acct, err := d.account(req)
	if err != nil {
		return nil, err
	}
	days, err := validation.ValidateDays("days", req.Days)
	if err != nil {
		return nil, err
	}
	quotaGB, err := validation.ValidateQuotaGB(req.QuotaGB)
	if err != nil {
		return nil, err
	}

	finalUser := acct.FinalUser()
	cfg, err := d.proxy.Load()
	if err != nil {
		return nil, err
	}
	if state := d.accountState(cfg, finalUser); state != models.Absent {
		d.logger.Debugf("Account %s is already %s", finalUser, state)
		return nil, &apperrors.DuplicateEmailError{Email: finalUser}
	}

	secret := d.newSecret()
	if err := d.appendClients(cfg, acct, secret); err != nil {
		return nil, err
	}

	now := d.now()
	createdAt := helpers.FormatDate(helpers.Today(now))
	expiredAt := helpers.ExpiryFromNow(now, days)

	if _, err := d.ledger.Write(acct.Protocol, finalUser, quotaGB, createdAt, expiredAt); err != nil {
		return nil, err
	}
	if acct.Protocol == constants.ProtocolAllProto {
		d.bestEffort("legacy ledger cleanup", d.ledger.RemoveLegacy(finalUser))
	}

	detailPath, _, err := d.sheets.Write(ctx, services.SheetRequest{
		Protocol:   acct.Protocol,
		FinalUser:  finalUser,
		Secret:     secret,
		QuotaGB:    quotaGB,
		Days:       days,
		ValidUntil: expiredAt,
	})
	if err != nil {
		d.bestEffort("ledger cleanup", d.ledger.Remove(acct.Protocol, finalUser))
		return nil, err
	}

	backupPath, err := d.proxy.SaveWithBackup(cfg)
	if err != nil {
		d.bestEffort("ledger cleanup", d.ledger.Remove(acct.Protocol, finalUser))
		d.bestEffort("sheet cleanup", d.sheets.Remove(acct.Protocol, finalUser))
		return nil, err
	}

	if err := d.restartProxy(ctx); err != nil {
		return nil, err
	}

	d.logger.Infof("Added account %s expiring %s", finalUser, expiredAt)

	resp := models.OK(map[string]any{
		"username":    finalUser,
		"expired_at":  expiredAt,
		"detail_path": detailPath,
		"backup_path": backupPath,
	})
	if acct.Protocol == constants.ProtocolTrojan {
		resp["password"] = secret
	} else {
		resp["uuid"] = secret
	}
	return resp, nil
}

// handleDelete removes an active or blocked account from every store
func (d *Dispatcher) handleDelete(ctx context.Context, req *models.Request) (models.Response, error) {
	acct, err := d.account(req)
	if err != nil {
		return nil, err
	}
	finalUser := acct.FinalUser()

	cfg, err := d.proxy.Load()
	if err != nil {
		return nil, err
	}

	removed := d.removeClients(cfg, acct)
	unrouted := cfg.UnblockUser(d.cfg.Xray.BlockedTag, finalUser)
	wasBlocked := d.blocked.Exists(finalUser)

	if removed == 0 && !wasBlocked {
		return nil, &apperrors.NotFoundError{What: "user", Username: finalUser}
	}

	backupPath := ""
	if removed > 0 || unrouted {
		backupPath, err = d.proxy.SaveWithBackup(cfg)
		if err != nil {
			return nil, err
		}
		if err := d.restartProxy(ctx); err != nil {
			return nil, err
		}
	}

	d.bestEffort("ledger removal", d.ledger.Remove(acct.Protocol, finalUser))
	d.bestEffort("sheet removal", d.sheets.Remove(acct.Protocol, finalUser))
	if acct.Protocol == constants.ProtocolAllProto {
		d.bestEffort("legacy ledger removal", d.ledger.RemoveLegacy(finalUser))
		for _, family := range constants.RealProtocols {
			d.bestEffort("legacy sheet removal", d.sheets.Remove(family, finalUser))
		}
	}
	d.bestEffort("blocked record removal", d.blocked.Remove(finalUser))

	d.logger.Infof("Deleted account %s (%d config entries, blocked=%v)", finalUser, removed, wasBlocked)

	return models.OK(map[string]any{
		"username":    finalUser,
		"removed":     removed,
		"backup_path": backupPath,
	}), nil
}

// handleRenew pushes the expiry of an account forward by add_days
func (d *Dispatcher) handleRenew(ctx context.Context, req *models.Request) (models.Response, error) {
	acct, err := d.account(req)
	if err != nil {
		return nil, err
	}
	addDays, err := validation.ValidateDays("add_days", req.AddDays)
	if err != nil {
		return nil, err
	}
	finalUser := acct.FinalUser()

	record, err := d.ledger.Read(acct.Protocol, finalUser)
	if err != nil {
		return nil, err
	}
	oldExpiry := strings.TrimSpace(record.ExpiredAt)
	if oldExpiry == "" {
		return nil, &apperrors.ValidationError{Field: "expired_at", Message: "missing in metadata"}
	}
	expiry, err := helpers.ParseDate(oldExpiry, d.now().Location())
	if err != nil {
		return nil, &apperrors.ValidationError{Field: "expired_at", Message: "invalid format"}
	}

	// The secret must be recoverable before the ledger changes
	secret, err := d.resolver.FromSheet(acct.Protocol, finalUser)
	if err != nil {
		return nil, err
	}

	newExpiry := helpers.FormatDate(expiry.AddDate(0, 0, addDays))
	record, err = d.ledger.Update(acct.Protocol, finalUser, func(r *models.QuotaRecord) error {
		r.ExpiredAt = newExpiry
		return nil
	})
	if err != nil {
		return nil, err
	}

	detailPath, _, err := d.writeSheet(ctx, acct, secret, record)
	if err != nil {
		return nil, err
	}

	d.logger.Infof("Renewed account %s until %s", finalUser, newExpiry)

	return models.OK(map[string]any{
		"username":    finalUser,
		"expired_at":  newExpiry,
		"detail_path": detailPath,
	}), nil
}

// handleQuotaGet reports the ledger record of an account
func (d *Dispatcher) handleQuotaGet(ctx context.Context, req *models.Request) (models.Response, error) {
	acct, err := d.account(req)
	if err != nil {
		return nil, err
	}

	record, err := d.ledger.Read(acct.Protocol, acct.FinalUser())
	if err != nil {
		return nil, err
	}

	return models.OK(map[string]any{
		"username":    acct.FinalUser(),
		"protocol":    acct.Protocol,
		"quota_limit": record.QuotaLimit,
		"quota_gb":    helpers.QuotaGBFromBytes(record.QuotaLimit),
		"expired_at":  record.ExpiredAt,
		"created_at":  record.CreatedAt,
	}), nil
}

// handleQuotaSet overwrites the quota of an account
func (d *Dispatcher) handleQuotaSet(ctx context.Context, req *models.Request) (models.Response, error) {
	acct, err := d.account(req)
	if err != nil {
		return nil, err
	}
	quotaGB, err := validation.ValidateQuotaGB(req.QuotaGB)
	if err != nil {
		return nil, err
	}
	finalUser := acct.FinalUser()

	if _, err := d.ledger.Read(acct.Protocol, finalUser); err != nil {
		return nil, err
	}
	secret, err := d.resolver.FromSheet(acct.Protocol, finalUser)
	if err != nil {
		return nil, err
	}

	record, err := d.ledger.Update(acct.Protocol, finalUser, func(r *models.QuotaRecord) error {
		r.QuotaLimit = helpers.QuotaBytesFromGB(quotaGB)
		return nil
	})
	if err != nil {
		return nil, err
	}

	detailPath, _, err := d.writeSheet(ctx, acct, secret, record)
	if err != nil {
		return nil, err
	}

	d.logger.Infof("Set quota of %s to %s", finalUser, helpers.FormatQuotaGB(quotaGB))

	return models.OK(map[string]any{
		"username":    finalUser,
		"quota_gb":    quotaGB,
		"quota_limit": record.QuotaLimit,
		"detail_path": detailPath,
	}), nil
}

// handleDetail regenerates the credential sheet of an existing account
func (d *Dispatcher) handleDetail(ctx context.Context, req *models.Request) (models.Response, error) {
	acct, err := d.account(req)
	if err != nil {
		return nil, err
	}
	finalUser := acct.FinalUser()

	record, err := d.ledger.Read(acct.Protocol, finalUser)
	if err != nil {
		return nil, err
	}

	cfg, err := d.proxy.Load()
	if err != nil {
		d.logger.Warnf("Proxy config unavailable for secret fallback: %v", err)
		cfg = nil
	}
	secret, err := d.resolver.Resolve(cfg, acct.Protocol, finalUser)
	if err != nil {
		return nil, err
	}

	detailPath, text, err := d.writeSheet(ctx, acct, secret, record)
	if err != nil {
		return nil, err
	}

	return models.OK(map[string]any{
		"username":    finalUser,
		"protocol":    acct.Protocol,
		"expired_at":  record.ExpiredAt,
		"detail_path": detailPath,
		"text":        text,
	}), nil
}

// writeSheet regenerates the sheet from a ledger record
func (d *Dispatcher) writeSheet(ctx context.Context, acct models.Account, secret string, record *models.QuotaRecord) (string, string, error) {
	return d.sheets.Write(ctx, services.SheetRequest{
		Protocol:   acct.Protocol,
		FinalUser:  acct.FinalUser(),
		Secret:     secret,
		QuotaGB:    helpers.QuotaGBFromBytes(record.QuotaLimit),
		Days:       helpers.DaysRemaining(record.ExpiredAt, d.now()),
		ValidUntil: record.ExpiredAt,
	})
}
