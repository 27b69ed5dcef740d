package solver

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// jobDigits is the number of significant digits kept per time in a job name.
const jobDigits = 4

// JobName builds "<n>-<t0>-<t1>-<id>-<uid hex>", where each time is written
// with jobDigits significant digits and the decimal point removed, so
// JobName(3, 0, 0.1, "x", uid) starts with "3-0000-1000-x-".
func JobName(n int, t0, t1 float64, id string, uid uuid.UUID) string {
	return fmt.Sprintf("%d-%s-%s-%s-%s", n, digits(t0), digits(t1), id,
		strings.ReplaceAll(uid.String(), "-", ""))
}

func digits(t float64) string {
	if t != 0 {
		t *= math.Pow(10, -math.Floor(math.Log10(math.Abs(t))))
		// Log10 can land one ulp off an exact power of ten.
		switch {
		case math.Abs(t) >= 10:
			t /= 10
		case math.Abs(t) < 1:
			t *= 10
		}
	}
	return strings.Replace(fmt.Sprintf("%.*f", jobDigits-1, t), ".", "", 1)
}
