// Package idempotency builds the request fingerprint stored alongside an
// idempotency key, so a retried post with a different payload is detected as
// a conflict instead of silently replayed.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/atlaserp/ledgercore/internal/utils/balance"
)

// Fingerprint produces a stable SHA-256 hex digest over the document ID and
// the posting lines. Line order is irrelevant: two requests with the same
// lines in different order are the same request.
func Fingerprint(documentID string, lines []balance.Line) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("%s|%s|%s|%s",
			line.AccountID, line.Direction, line.Amount.Round(balance.Scale).String(), line.CurrencyCode))
	}
	sort.Strings(parts)

	h := sha256.New()
	h.Write([]byte(documentID))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}
