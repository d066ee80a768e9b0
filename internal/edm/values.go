package edm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Date is an Edm.Date value.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// ParseDate parses an Edm.Date literal (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid Edm.Date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// TimeOfDay is an Edm.TimeOfDay value.
type TimeOfDay struct {
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

func (t TimeOfDay) String() string {
	s := fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	if t.Nanosecond != 0 {
		s += strings.TrimRight(fmt.Sprintf(".%09d", t.Nanosecond), "0")
	}
	return s
}

// ParseTimeOfDay parses an Edm.TimeOfDay literal (hh:mm[:ss[.fffffffff]]).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	layouts := []string{"15:04:05.999999999", "15:04:05", "15:04"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanosecond: t.Nanosecond()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid Edm.TimeOfDay %q", s)
}

// ParseDateTimeOffset parses an Edm.DateTimeOffset literal (RFC 3339).
func ParseDateTimeOffset(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid Edm.DateTimeOffset %q: %w", s, err)
	}
	return t, nil
}

// ParseDuration parses an Edm.Duration literal in the xs:dayTimeDuration
// form: [-]P[nD][T[nH][nM][n[.f]S]].
func ParseDuration(s string) (time.Duration, error) {
	invalid := fmt.Errorf("invalid Edm.Duration %q", s)
	rest := s
	negative := false
	if strings.HasPrefix(rest, "-") {
		negative = true
		rest = rest[1:]
	}
	if !strings.HasPrefix(rest, "P") {
		return 0, invalid
	}
	rest = rest[1:]
	if rest == "" {
		return 0, invalid
	}

	var total float64
	inTime := false
	seen := false
	for rest != "" {
		if rest[0] == 'T' {
			if inTime {
				return 0, invalid
			}
			inTime = true
			rest = rest[1:]
			if rest == "" {
				return 0, invalid
			}
			continue
		}
		i := 0
		for i < len(rest) && (rest[i] >= '0' && rest[i] <= '9' || rest[i] == '.') {
			i++
		}
		if i == 0 || i == len(rest) {
			return 0, invalid
		}
		n, err := strconv.ParseFloat(rest[:i], 64)
		if err != nil {
			return 0, invalid
		}
		unit := rest[i]
		rest = rest[i+1:]
		switch {
		case unit == 'D' && !inTime:
			total += n * float64(24*time.Hour)
		case unit == 'H' && inTime:
			total += n * float64(time.Hour)
		case unit == 'M' && inTime:
			total += n * float64(time.Minute)
		case unit == 'S' && inTime:
			total += n * float64(time.Second)
		default:
			return 0, invalid
		}
		seen = true
	}
	if !seen || total > math.MaxInt64 {
		return 0, invalid
	}
	d := time.Duration(total)
	if negative {
		d = -d
	}
	return d, nil
}
