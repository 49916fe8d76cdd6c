package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	defaultCorrelation = "general"
	defaultTemplate    = "freeform"
)

// DeriveIdempotencyKey produces the deterministic key bounding duplicate
// sends: identical (channel, to, correlation, template) inputs within the
// same wall-clock hour yield the same key, so a repeat send inside the window
// returns the original message instead of sending again. After the hour
// rolls over a legitimately new message is allowed.
func DeriveIdempotencyKey(channel Channel, to, correlationID, templateKey string, at time.Time) string {
	if correlationID == "" {
		correlationID = defaultCorrelation
	}
	if templateKey == "" {
		templateKey = defaultTemplate
	}
	hourBucket := at.UTC().Truncate(time.Hour).Unix()

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d", channel, to, correlationID, templateKey, hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}
