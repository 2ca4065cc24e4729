package helpers

import (
	"fmt"
	"math"

	"xray-backend/internal/constants"
)

// QuotaBytesFromGB converts gigabytes to bytes; non-positive means unlimited (0)
func QuotaBytesFromGB(quotaGB float64) int64 {
	if quotaGB <= 0 {
		return 0
	}
	return int64(math.Round(quotaGB * constants.BytesInGB))
}

// QuotaGBFromBytes converts a stored byte limit back to gigabytes
func QuotaGBFromBytes(quotaBytes int64) float64 {
	if quotaBytes <= 0 {
		return 0
	}
	return float64(quotaBytes) / constants.BytesInGB
}

// FormatQuotaGB renders a quota for the credential sheet
func FormatQuotaGB(quotaGB float64) string {
	if quotaGB <= 0 {
		return constants.UnlimitedQuota
	}
	if math.Abs(quotaGB-math.Trunc(quotaGB)) < 1e-9 {
		return fmt.Sprintf("%d GB", int64(quotaGB))
	}
	return fmt.Sprintf("%g GB", quotaGB)
}
