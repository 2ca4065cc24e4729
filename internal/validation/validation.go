package validation

import (
	"fmt"
	"strings"

	"xray-backend/internal/constants"
	apperrors "xray-backend/internal/errors"
	"xray-backend/internal/models"
)

// ValidateUsername validates a username according to business rules
func ValidateUsername(username string) error {
	if username == "" || len(username) > constants.MaxUsernameLength {
		return &apperrors.ValidationError{Message: "invalid username"}
	}

	for _, r := range username {
		if !isValidUsernameChar(r) {
			return &apperrors.ValidationError{Message: "invalid username"}
		}
	}

	return nil
}

// ValidateProtocol normalizes and validates an account protocol
func ValidateProtocol(protocol string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(protocol))
	if !models.IsValidProtocol(p) {
		return "", &apperrors.ValidationError{Message: "invalid protocol"}
	}
	return p, nil
}

// ValidateProtocolFilter normalizes a list filter; empty and * mean all
func ValidateProtocolFilter(filter string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(filter))
	switch f {
	case "", "*", constants.ProtocolFilterAll:
		return constants.ProtocolFilterAll, nil
	}
	if !models.IsValidProtocol(f) {
		return "", &apperrors.ValidationError{Message: "invalid protocol"}
	}
	return f, nil
}

// ValidateDays validates a day count field
func ValidateDays(field string, n models.Number) (int, error) {
	days, err := n.Int(0)
	if err != nil {
		return 0, &apperrors.ValidationError{Field: field, Message: "must be integer"}
	}

	if days < constants.MinDays || days > constants.MaxDays {
		return 0, &apperrors.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("out of range (%d..%d)", constants.MinDays, constants.MaxDays),
		}
	}

	return days, nil
}

// ValidateQuotaGB validates a quota in gigabytes
func ValidateQuotaGB(n models.Number) (float64, error) {
	gb, err := n.Float(0)
	if err != nil {
		return 0, &apperrors.ValidationError{Field: "quota_gb", Message: "must be number"}
	}
	if gb < 0 {
		return 0, &apperrors.ValidationError{Field: "quota_gb", Message: "must be >= 0"}
	}
	if gb > constants.MaxQuotaGB {
		return 0, &apperrors.ValidationError{
			Field:   "quota_gb",
			Message: fmt.Sprintf("must be <= %d", int64(constants.MaxQuotaGB)),
		}
	}
	return gb, nil
}

// ClampListWindow clamps limit into [1, MaxListLimit] and offset to >= 0
func ClampListWindow(limit, offset int) (int, int) {
	if limit < 1 {
		limit = 1
	}
	if limit > constants.MaxListLimit {
		limit = constants.MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ClampLogWindow clamps page size into [MinLogPageSize, MaxLogPageSize] and page
// into [0, MaxLogLines/pageSize)
func ClampLogWindow(page, pageSize int) (int, int) {
	if page < 0 {
		page = 0
	}
	if pageSize < constants.MinLogPageSize {
		pageSize = constants.MinLogPageSize
	}
	if pageSize > constants.MaxLogPageSize {
		pageSize = constants.MaxLogPageSize
	}
	if maxPage := constants.MaxLogLines/pageSize - 1; page > maxPage {
		page = maxPage
	}
	return page, pageSize
}

// isValidUsernameChar checks if a character is valid for usernames
func isValidUsernameChar(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '_'
}
