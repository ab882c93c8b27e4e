// Package render produces the chat text and inline keyboards shown for a
// missed call as its callback moves through its lifecycle. Everything here is
// side-effect free.
package render

import (
	"fmt"
	"strings"
)

// Cause identifies which outcome line is appended to a notice. Besides the
// two synthetic causes, values are Asterisk hangup cause codes.
type Cause string

const (
	CauseSuccess         Cause = "success" // customer leg bridged
	CauseDrop            Cause = "drop"    // operator leg failed to originate
	CauseNormalClearing  Cause = "16"
	CauseCustomerDropped Cause = "17"
	CauseNoAnswer        Cause = "21"
)

// Status line markers. Every annotation starts with one of these.
const (
	markerDialing   = "🔒"
	markerReached   = "📞"
	markerDropped   = "❌"
	markerCompleted = "✅"
	markerRejected  = "📴"
	markerNoAnswer  = "🚫"
)

var markers = []string{
	markerDialing,
	markerReached,
	markerDropped,
	markerCompleted,
	markerRejected,
	markerNoAnswer,
}

// MissedCallNotice renders the first line of a notification.
func MissedCallNotice(customer string, waitSeconds int) string {
	return fmt.Sprintf("Missed call from: %s. Waiting time: %d seconds.", customer, waitSeconds)
}

// DialingNotice replaces any status line on base with the dialing line.
func DialingNotice(base, extension, customer string) string {
	return Trim(base) + "\n" + markerDialing + extension + " dialing " + customer + "..."
}

// OutcomeNotice replaces any status line on base with the line for cause.
// Unknown causes return base untouched.
func OutcomeNotice(base string, cause Cause, extension, customer string) string {
	line, ok := outcomeLine(cause, extension, customer)
	if !ok {
		return base
	}
	return Trim(base) + "\n" + line
}

// KnownCause reports whether OutcomeNotice has a line for cause.
func KnownCause(cause Cause) bool {
	_, ok := outcomeLine(cause, "", "")
	return ok
}

func outcomeLine(cause Cause, ext, num string) (string, bool) {
	switch cause {
	case CauseSuccess:
		return markerReached + " " + ext + " reached +" + num, true
	case CauseDrop:
		return markerDropped + " " + ext + " dropped the call to +" + num, true
	case CauseNormalClearing:
		return markerCompleted + " " + ext + " successfully called " + num, true
	case CauseCustomerDropped:
		return markerRejected + " +" + num + " dropped call from " + ext, true
	case CauseNoAnswer:
		return markerNoAnswer + " +" + num + " didn't answer the call from " + ext, true
	default:
		return "", false
	}
}

// Trim strips trailing status lines so a new one can be appended. The first
// line, the missed-call notice itself, is never removed.
func Trim(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for len(lines) > 1 && isAnnotation(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func isAnnotation(line string) bool {
	line = strings.TrimSpace(line)
	for _, m := range markers {
		if strings.HasPrefix(line, m) {
			return true
		}
	}
	return false
}

// NormalizeNumber strips plus signs and surrounding whitespace.
func NormalizeNumber(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), "+", "")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
