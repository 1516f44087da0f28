package game

import "fmt"

// FormatMs renders a duration in milliseconds as "s.cc" or "m:ss.cc".
// Hundredths are truncated, not rounded.
func FormatMs(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	s := ms / 1000
	cs := (ms % 1000) / 10
	mm := s / 60
	ss := s % 60
	if mm > 0 {
		return fmt.Sprintf("%d:%02d.%02d", mm, ss, cs)
	}
	return fmt.Sprintf("%d.%02d", ss, cs)
}
