package lifecycle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a calendar-aware duration made of months and days.
// Months are added with time.AddDate, so Jan 31 + 1mo normalizes to early March.
type Window struct {
	Months int
	Days   int
}

// DefaultWindow is one calendar month.
var DefaultWindow = Window{Months: 1}

// IsZero reports whether the window adds nothing.
func (w Window) IsZero() bool {
	return w.Months == 0 && w.Days == 0
}

// AddTo returns t shifted forward by the window.
func (w Window) AddTo(t time.Time) time.Time {
	return t.AddDate(0, w.Months, w.Days)
}

func (w Window) String() string {
	switch {
	case w.Months != 0 && w.Days != 0:
		return fmt.Sprintf("%dmo%dd", w.Months, w.Days)
	case w.Days != 0:
		if w.Days%7 == 0 {
			return fmt.Sprintf("%dw", w.Days/7)
		}
		return fmt.Sprintf("%dd", w.Days)
	default:
		return fmt.Sprintf("%dmo", w.Months)
	}
}

// ParseWindow parses values like "1mo", "2w", "14d" or "1mo15d".
func ParseWindow(s string) (Window, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	if in == "" {
		return Window{}, fmt.Errorf("empty expiry window")
	}

	var w Window
	rest := in
	for rest != "" {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 {
			return Window{}, fmt.Errorf("invalid expiry window %q", s)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return Window{}, fmt.Errorf("invalid expiry window %q: %w", s, err)
		}
		rest = rest[i:]

		switch {
		case strings.HasPrefix(rest, "mo"):
			w.Months += n
			rest = rest[2:]
		case strings.HasPrefix(rest, "w"):
			w.Days += 7 * n
			rest = rest[1:]
		case strings.HasPrefix(rest, "d"):
			w.Days += n
			rest = rest[1:]
		default:
			return Window{}, fmt.Errorf("invalid expiry window unit in %q (use mo, w or d)", s)
		}
	}

	if w.IsZero() {
		return Window{}, fmt.Errorf("expiry window %q must be positive", s)
	}
	return w, nil
}
