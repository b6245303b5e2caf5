package order

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// numberRetries bounds how many times checkout regenerates an order number
// after a unique-key collision. The date-plus-random scheme can collide under
// concurrent creation within the same day, so Create retries instead of
// surfacing the conflict to the customer.
const numberRetries = 5

// NumberFunc generates a candidate order number for the given creation time.
type NumberFunc func(t time.Time) string

// GenerateNumber produces a human-readable order number:
// "ORD" + yymmdd + a 4-digit random suffix, e.g. ORD2603150417.
func GenerateNumber(t time.Time) string {
	return fmt.Sprintf("ORD%s%04d", t.Format("060102"), rand.IntN(10000))
}
