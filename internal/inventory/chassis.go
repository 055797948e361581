package inventory

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// GenerateChassisNumber builds a placeholder chassis number for demo data:
// two letters of brand and model, the last six digits of the unix
// millisecond clock and a zero padded random suffix.
func GenerateChassisNumber(brand, model string, now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return fmt.Sprintf("%s%s%s%03d", prefix(brand), prefix(model), ms, rand.IntN(1000))
}

func prefix(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	r := []rune(s)
	if len(r) > 2 {
		r = r[:2]
	}
	return string(r)
}
