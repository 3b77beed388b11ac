package videos

import (
	"regexp"
	"strconv"
	"strings"
)

// ShortMaxSeconds is the longest duration still classified as a short.
const ShortMaxSeconds = 60

var durationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration decodes an ISO-8601 period such as "PT1H2M3S" into seconds.
// Any component may be absent. Strings that do not match yield 0.
func ParseDuration(s string) int {
	m := durationPattern.FindStringSubmatch(strings.TrimSpace(strings.ToUpper(s)))
	if m == nil {
		return 0
	}

	units := [...]int{86400, 3600, 60, 1}
	total := 0
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0
		}
		total += n * unit
	}
	return total
}

// IsShort reports whether a duration qualifies as a short. Zero never does.
func IsShort(seconds int) bool {
	return seconds > 0 && seconds <= ShortMaxSeconds
}
