package payment

import (
	"fmt"
	"strings"

	"payuz/internal/domain"
)

// parseTransactionID splits a composite "<gateway>_<account>_<amount>" id.
// The first segment must equal the gateway name and at least three segments
// must be present.
func parseTransactionID(gateway, transactionID string) (accountID, amount string, err error) {
	parts := strings.Split(transactionID, "_")
	if len(parts) < 3 || parts[0] != gateway {
		return "", "", fmt.Errorf("%w: %q", domain.ErrInvalidTransactionID, transactionID)
	}
	return parts[1], parts[2], nil
}
