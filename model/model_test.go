package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func weekdayCalendar(weekdays [7]bool) ServiceCalendar {
	return ServiceCalendar{
		StartDate: 20240101,
		EndDate:   20261231,
		Weekdays:  weekdays,
	}
}

func TestServiceActiveOnWeekdays(t *testing.T) {
	snap := &Snapshot{
		Calendars: map[string]ServiceCalendar{
			"weekdays": weekdayCalendar([7]bool{true, true, true, true, true, false, false}),
		},
		ExceptionsByDate: map[int]map[string]int8{},
	}

	// 2024-06-03 is a Monday, 2024-06-08 a Saturday.
	assert.True(t, snap.ServiceActiveOn("weekdays", 20240603))
	assert.False(t, snap.ServiceActiveOn("weekdays", 20240608))

	// Outside the date range.
	assert.False(t, snap.ServiceActiveOn("weekdays", 20231204))

	// No calendar record at all.
	assert.False(t, snap.ServiceActiveOn("unknown", 20240603))
}

func TestServiceActiveOnExceptions(t *testing.T) {
	snap := &Snapshot{
		Calendars: map[string]ServiceCalendar{
			"weekdays": weekdayCalendar([7]bool{true, true, true, true, true, false, false}),
		},
		ExceptionsByDate: map[int]map[string]int8{
			20240603: {"weekdays": ExceptionRemoved}, // a Monday, removed
			20240608: {"weekdays": ExceptionAdded},   // a Saturday, added
			20240609: {"exception-only": ExceptionAdded},
		},
	}

	assert.False(t, snap.ServiceActiveOn("weekdays", 20240603))
	assert.True(t, snap.ServiceActiveOn("weekdays", 20240608))

	// An added exception activates a service with no calendar at all.
	assert.True(t, snap.ServiceActiveOn("exception-only", 20240609))
}

func TestCoordinates(t *testing.T) {
	lat, lon := 49.44, 1.09
	stop := &StopInfo{Lat: &lat, Lon: &lon}
	gotLat, gotLon, ok := stop.Coordinates()
	assert.True(t, ok)
	assert.Equal(t, 49.44, gotLat)
	assert.Equal(t, 1.09, gotLon)

	_, _, ok = (&StopInfo{Lat: &lat}).Coordinates()
	assert.False(t, ok)
	_, _, ok = (&StopInfo{}).Coordinates()
	assert.False(t, ok)
}

func TestMinutesUntil(t *testing.T) {
	assert.Equal(t, 0, MinutesUntil(1000, 1000))
	assert.Equal(t, 0, MinutesUntil(900, 1000))
	assert.Equal(t, 1, MinutesUntil(1030, 1000)) // 30s rounds up
	assert.Equal(t, 0, MinutesUntil(1029, 1000)) // 29s rounds down
	assert.Equal(t, 5, MinutesUntil(1300, 1000))
}

func TestISOTime(t *testing.T) {
	assert.Equal(t, "2024-06-03T06:00:00Z", ISOTime(1717394400))
}
