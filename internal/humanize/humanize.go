// Package humanize formats durations for log fields the way the connection
// lifecycle wants to see them: seconds and minutes, never hours or days.
// Anything past an hour collapses to "60+m" rather than growing a unit the
// FSM never needs to log — connection uptimes worth narrating in a log line
// are measured in seconds to tens of minutes, not hours.
package humanize

import (
	"fmt"
	"time"
)

// Duration renders d as "<n>ms", "<n>s", or "<n>m", whichever is coarsest
// without losing the leading digit, capping out at "60+m".
func Duration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	if minutes >= 60 {
		return "60+m"
	}
	return fmt.Sprintf("%dm", minutes)
}
