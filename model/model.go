package model

import (
	"time"
)

// Holds all external facing types and constants.

type LocationType int8

const (
	LocationTypeStop    LocationType = 0
	LocationTypeStation LocationType = 1
)

const (
	// Service exception types, as in calendar_dates.txt.
	ExceptionAdded   int8 = 1
	ExceptionRemoved int8 = 2
)

// A stop or station. IDs are namespaced as "<provider>:<local-id>".
type StopInfo struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Lat             *float64          `json:"lat"`
	Lon             *float64          `json:"lon"`
	Code            string            `json:"stopCode,omitempty"`
	LocationType    LocationType      `json:"locationType"`
	ParentStationID string            `json:"parentStationId,omitempty"`
	TransportModes  []string          `json:"transportModes"`
	LineHints       []string          `json:"lineHints"`
	LineHintColors  map[string]string `json:"lineHintColors"`
}

// Coordinates reports the stop position, if the feed provided one.
func (s *StopInfo) Coordinates() (lat float64, lon float64, ok bool) {
	if s.Lat == nil || s.Lon == nil {
		return 0, 0, false
	}
	return *s.Lat, *s.Lon, true
}

func (s *StopInfo) IsStation() bool {
	return s.LocationType == LocationTypeStation
}

type RouteInfo struct {
	ID        string `json:"id"`
	ShortName string `json:"shortName"`
	LongName  string `json:"longName"`
	Type      int    `json:"type"` // GTFS route_type, -1 when absent
	Color     string `json:"color,omitempty"`
}

type TripInfo struct {
	ID        string `json:"id"`
	RouteID   string `json:"routeId"`
	Headsign  string `json:"headsign"`
	ServiceID string `json:"serviceId"`
}

type StopTimeInfo struct {
	TripID           string
	StopID           string
	DepartureSeconds int // seconds since local midnight, may exceed 24h
	StopHeadsign     string
}

// Weekly recurrence rule for a service. Weekdays are Monday-first.
type ServiceCalendar struct {
	StartDate int // YYYYMMDD, inclusive
	EndDate   int // YYYYMMDD, inclusive
	Weekdays  [7]bool
}

// A vehicle departing from a stop.
type Departure struct {
	StopID       string `json:"stopId"`
	StopName     string `json:"stopName"`
	RouteID      string `json:"routeId"`
	Line         string `json:"line"`
	LineColor    string `json:"lineColor,omitempty"`
	Destination  string `json:"destination"`
	Unix         int64  `json:"departureUnix"`
	ISO          string `json:"departureIso"`
	MinutesUntil int    `json:"minutesUntilDeparture"`
	Source       string `json:"sourceUrl"`
	IsRealtime   bool   `json:"isRealtime"`
}

// ISOTime renders an instant for the departure payload.
func ISOTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

// MinutesUntil is the rounded, non-negative number of minutes from
// now until the departure.
func MinutesUntil(unix, now int64) int {
	delta := unix - now
	if delta <= 0 {
		return 0
	}
	return int((delta + 30) / 60)
}

// Precomputed search index entry for a stop. Built once per snapshot
// so ranked lookups stay O(stops) per query.
type SearchableStop struct {
	Stop             *StopInfo
	NormName         string
	NormID           string
	NormCode         string
	HasKnownService  bool
	IsBoardingStop   bool
	ProviderPriority int
	LineHintCount    int
}

// In-memory relational view of a static feed. Built wholesale by
// parse.ParseStatic and treated as immutable once published; a cache
// refresh replaces the whole snapshot.
type Snapshot struct {
	FetchedAt time.Time

	Stops            map[string]*StopInfo
	Routes           map[string]*RouteInfo
	Trips            map[string]*TripInfo
	StopTimesByStop  map[string][]StopTimeInfo
	ChildrenByParent map[string][]string
	Calendars        map[string]ServiceCalendar
	ExceptionsByDate map[int]map[string]int8
	ColorByLine      map[string]string // normalized line name -> "#RRGGBB"
	Searchable       []SearchableStop
}

// ServiceActiveOn reports whether a service runs on the given civil
// date. An exception for the exact date always wins over the weekly
// calendar. A service with no calendar record at all is inactive.
func (s *Snapshot) ServiceActiveOn(serviceID string, dateKey int) bool {
	if byService, ok := s.ExceptionsByDate[dateKey]; ok {
		switch byService[serviceID] {
		case ExceptionAdded:
			return true
		case ExceptionRemoved:
			return false
		}
	}

	cal, ok := s.Calendars[serviceID]
	if !ok {
		return false
	}
	if dateKey < cal.StartDate || dateKey > cal.EndDate {
		return false
	}
	return cal.Weekdays[weekdayIndex(dateKey)]
}

// weekdayIndex returns the Monday-first weekday of a YYYYMMDD date
// key. Sampling at UTC noon keeps the date stable regardless of the
// machine timezone.
func weekdayIndex(dateKey int) int {
	y := dateKey / 10000
	m := (dateKey % 10000) / 100
	d := dateKey % 100
	wd := time.Date(y, time.Month(m), d, 12, 0, 0, 0, time.UTC).Weekday()
	// time.Weekday is Sunday-first.
	return (int(wd) + 6) % 7
}
