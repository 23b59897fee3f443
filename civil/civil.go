// Package civil converts between absolute instants and the civil
// calendar of a transit authority's timezone. Schedules are expressed
// as (local date, seconds since local midnight) pairs, where the
// seconds may exceed 24h for late-night trips.
package civil

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// A DateKey is a civil date as a YYYYMMDD integer.
type DateKey int

var dateKeyRe = regexp.MustCompile(`^\d{8}$`)

// ParseDateKey parses a GTFS-style YYYYMMDD date field.
func ParseDateKey(s string) (DateKey, error) {
	if !dateKeyRe.MatchString(s) {
		return 0, fmt.Errorf("invalid date %q", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q", s)
	}
	return DateKey(n), nil
}

// DateKeyAt returns the civil date of an instant in the given zone.
func DateKeyAt(unix int64, loc *time.Location) DateKey {
	t := time.Unix(unix, 0).In(loc)
	return DateKey(t.Year()*10000 + int(t.Month())*100 + t.Day())
}

func (d DateKey) split() (year int, month time.Month, day int) {
	return int(d) / 10000, time.Month((int(d) % 10000) / 100), int(d) % 100
}

func offsetAt(unix int64, loc *time.Location) int64 {
	_, offset := time.Unix(unix, 0).In(loc).Zone()
	return int64(offset)
}

// Unix resolves a (civil date, seconds from midnight) pair to an
// absolute instant. The UTC offset is estimated at the date's
// midnight and re-resolved once if the candidate instant lands on the
// other side of a DST transition; without the second pass, times on a
// change-over day would be off by the shift.
func Unix(d DateKey, secondsFromMidnight int, loc *time.Location) int64 {
	year, month, day := d.split()
	utcMidnight := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix()

	offset := offsetAt(utcMidnight, loc)
	unix := utcMidnight - offset + int64(secondsFromMidnight)
	if refined := offsetAt(unix, loc); refined != offset {
		unix = utcMidnight - refined + int64(secondsFromMidnight)
	}
	return unix
}

// CandidateDateKeys lists the civil dates whose service calendars can
// contribute departures to an absolute [now, max] window. Late-night
// schedule times straddle midnight, so the day before and after the
// window are included too.
func CandidateDateKeys(nowUnix, maxUnix int64, loc *time.Location) []DateKey {
	seen := map[DateKey]bool{}
	keys := []DateKey{}
	for _, u := range []int64{nowUnix - 86400, nowUnix, maxUnix, maxUnix + 86400} {
		k := DateKeyAt(u, loc)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

var localDateTimeRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})T(\d{2}):(\d{2})(?::(\d{2}))?$`)

// ParseLocalDateTime resolves a zone-less "2006-01-02T15:04[:05]"
// timestamp, as used by the external provider, to an instant in the
// given zone.
func ParseLocalDateTime(s string, loc *time.Location) (int64, error) {
	m := localDateTimeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid local datetime %q", s)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	second := 0
	if m[6] != "" {
		second, _ = strconv.Atoi(m[6])
	}

	dateKey := DateKey(year*10000 + month*100 + day)
	return Unix(dateKey, hour*3600+minute*60+second, loc), nil
}
