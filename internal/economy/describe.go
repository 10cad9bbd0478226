package economy

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinDescriptionLen is the shortest description kept as-is.
const MinDescriptionLen = 50

// DurationLabel maps a point cost to a rough break length.
func DurationLabel(threshold int) string {
	switch {
	case threshold > 80:
		return "~60+ min"
	case threshold > 40:
		return "~30–45 min"
	default:
		return "~15–20 min"
	}
}

// BreakMinutes maps a point cost to a practical break timer length.
func BreakMinutes(threshold int) int {
	switch {
	case threshold > 80:
		return 60
	case threshold > 40:
		return 40
	default:
		return 20
	}
}

// FillerDescription builds the generated text used when a reward has no usable description.
func FillerDescription(label string, threshold int) string {
	if strings.TrimSpace(label) == "" {
		label = DefaultLabel
	}
	return fmt.Sprintf(
		"%s: Take a deliberate break lasting %s. Close your open tabs or pause notifications first to create a calm buffer, "+
			"then enjoy it fully so the reward feels restorative and your momentum stays sustainable across the day.",
		label, DurationLabel(threshold))
}

// EnsureDescription keeps desc when it is long enough, otherwise returns filler.
func EnsureDescription(label string, threshold int, desc string) string {
	if utf8.RuneCountInString(desc) >= MinDescriptionLen {
		return desc
	}
	return FillerDescription(label, threshold)
}
