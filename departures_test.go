package transit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buswidget.dev/transit/civil"
	"buswidget.dev/transit/model"
	"buswidget.dev/transit/parse"
	"buswidget.dev/transit/testutil"
)

// Monday 2024-06-03, 07:30 local time in Paris.
func mondayMorning(t *testing.T) (int64, *time.Location) {
	loc := testutil.Paris(t)
	return time.Date(2024, 6, 3, 7, 30, 0, 0, loc).Unix(), loc
}

func blendFixture(t *testing.T, feeds []*parse.Realtime, targets map[string]bool, lineFilter map[string]bool) []model.Departure {
	nowUnix, loc := mondayMorning(t)
	snap := testutil.LoadSnapshot(t, testutil.ValidFeed())

	return blendDepartures(blendQuery{
		snap:       snap,
		feeds:      feeds,
		requested:  snap.Stops["TCAR:s1"],
		targets:    targets,
		lineFilter: lineFilter,
		nowUnix:    nowUnix,
		maxUnix:    nowUnix + 3600,
		limit:      10,
		location:   loc,
	})
}

func TestBlendScheduledOnly(t *testing.T) {
	nowUnix, loc := mondayMorning(t)

	departures := blendFixture(t, nil, map[string]bool{"TCAR:s1": true}, nil)
	require.Len(t, departures, 1)

	d := departures[0]
	assert.Equal(t, "TCAR:s1", d.StopID)
	assert.Equal(t, "Gare Rue Verte", d.StopName)
	assert.Equal(t, "F1", d.Line)
	assert.Equal(t, "Plaine de la Ronce", d.Destination)
	assert.Equal(t, staticScheduleSource, d.Source)
	assert.False(t, d.IsRealtime)

	wantUnix := civil.Unix(civil.DateKeyAt(nowUnix, loc), 8*3600, loc)
	assert.Equal(t, wantUnix, d.Unix)
	assert.Equal(t, 30, d.MinutesUntil)
}

func TestBlendRealtimeReplacesScheduled(t *testing.T) {
	nowUnix, loc := mondayMorning(t)
	scheduledUnix := civil.Unix(civil.DateKeyAt(nowUnix, loc), 8*3600, loc)

	feeds := []*parse.Realtime{{
		Source:    "http://rt",
		Timestamp: uint64(nowUnix),
		Updates: []parse.TripUpdate{{
			Source: "http://rt", TripID: "t1", RouteID: "r1",
			StopID: "TCAR:s1", Unix: scheduledUnix,
		}},
	}}

	departures := blendFixture(t, feeds, map[string]bool{"TCAR:s1": true}, nil)
	require.Len(t, departures, 1)
	assert.True(t, departures[0].IsRealtime)
	assert.Equal(t, "http://rt", departures[0].Source)
	// Destination comes from the trip headsign.
	assert.Equal(t, "Plaine de la Ronce", departures[0].Destination)
}

func TestBlendRealtimeDelayKeepsBoth(t *testing.T) {
	nowUnix, loc := mondayMorning(t)
	scheduledUnix := civil.Unix(civil.DateKeyAt(nowUnix, loc), 8*3600, loc)

	// A prediction at a different instant does not suppress the
	// scheduled row.
	feeds := []*parse.Realtime{{
		Source: "http://rt",
		Updates: []parse.TripUpdate{{
			Source: "http://rt", TripID: "t1", RouteID: "r1",
			StopID: "TCAR:s1", Unix: scheduledUnix + 300,
		}},
	}}

	departures := blendFixture(t, feeds, map[string]bool{"TCAR:s1": true}, nil)
	require.Len(t, departures, 2)
	assert.Equal(t, scheduledUnix, departures[0].Unix)
	assert.False(t, departures[0].IsRealtime)
	assert.Equal(t, scheduledUnix+300, departures[1].Unix)
	assert.True(t, departures[1].IsRealtime)
}

func TestBlendRealtimeDeduped(t *testing.T) {
	nowUnix, loc := mondayMorning(t)
	unix := civil.Unix(civil.DateKeyAt(nowUnix, loc), 8*3600, loc)

	update := parse.TripUpdate{
		Source: "http://rt", TripID: "t1", RouteID: "r1",
		StopID: "TCAR:s1", Unix: unix,
	}
	feeds := []*parse.Realtime{{
		Source:  "http://rt",
		Updates: []parse.TripUpdate{update, update},
	}}

	departures := blendFixture(t, feeds, map[string]bool{"TCAR:s1": true}, nil)
	assert.Len(t, departures, 1)
}

func TestBlendLineFilter(t *testing.T) {
	departures := blendFixture(t, nil, map[string]bool{"TCAR:s1": true},
		map[string]bool{"F1": true})
	assert.Len(t, departures, 1)

	departures = blendFixture(t, nil, map[string]bool{"TCAR:s1": true},
		map[string]bool{"T4": true})
	assert.Empty(t, departures)
}

func TestBlendWindowAndLimit(t *testing.T) {
	nowUnix, loc := mondayMorning(t)

	files := testutil.ValidFeed()
	files["stop_times.txt"] = []string{
		"trip_id,departure_time,stop_id,stop_sequence",
		"t1,08:20:00,TCAR:s1,1",
		"t1,08:00:00,TCAR:s1,2",
		"t1,08:10:00,TCAR:s1,3",
		"t1,06:00:00,TCAR:s1,4", // before the window
		"t1,09:00:00,TCAR:s1,5", // after the window
	}
	snap := testutil.LoadSnapshot(t, files)

	departures := blendDepartures(blendQuery{
		snap:      snap,
		requested: snap.Stops["TCAR:s1"],
		targets:   map[string]bool{"TCAR:s1": true},
		nowUnix:   nowUnix,
		maxUnix:   nowUnix + 3600,
		limit:     2,
		location:  loc,
	})

	require.Len(t, departures, 2)
	wantFirst := civil.Unix(civil.DateKeyAt(nowUnix, loc), 8*3600, loc)
	assert.Equal(t, wantFirst, departures[0].Unix)
	assert.Equal(t, wantFirst+600, departures[1].Unix)
}

func TestBlendServiceExceptionRemovesDay(t *testing.T) {
	nowUnix, loc := mondayMorning(t)

	files := testutil.ValidFeed()
	files["calendar_dates.txt"] = []string{
		"service_id,date,exception_type",
		"weekdays,20240603,2",
	}
	snap := testutil.LoadSnapshot(t, files)

	departures := blendDepartures(blendQuery{
		snap:      snap,
		requested: snap.Stops["TCAR:s1"],
		targets:   map[string]bool{"TCAR:s1": true},
		nowUnix:   nowUnix,
		maxUnix:   nowUnix + 3600,
		limit:     10,
		location:  loc,
	})
	assert.Empty(t, departures)
}

func TestBlendStationMergesChildren(t *testing.T) {
	nowUnix, loc := mondayMorning(t)

	files := testutil.ValidFeed()
	files["stops.txt"] = []string{
		"stop_id,stop_name,stop_lat,stop_lon,location_type,parent_station",
		"TCAR:station,Gare,49.443,1.094,1,",
		"TCAR:quay1,Gare Quai A,49.4431,1.0941,0,TCAR:station",
		"TCAR:quay2,Gare Quai B,49.4432,1.0942,0,TCAR:station",
	}
	files["trips.txt"] = []string{
		"route_id,service_id,trip_id,trip_headsign",
		"r1,weekdays,t1,Plaine",
		"r1,weekdays,t2,Centre",
	}
	files["stop_times.txt"] = []string{
		"trip_id,departure_time,stop_id,stop_sequence",
		"t1,08:00:00,TCAR:quay1,1",
		"t2,08:05:00,TCAR:quay2,1",
	}
	snap := testutil.LoadSnapshot(t, files)

	departures := blendDepartures(blendQuery{
		snap:      snap,
		requested: snap.Stops["TCAR:station"],
		targets:   map[string]bool{"TCAR:station": true, "TCAR:quay1": true, "TCAR:quay2": true},
		nowUnix:   nowUnix,
		maxUnix:   nowUnix + 3600,
		limit:     10,
		location:  loc,
	})

	require.Len(t, departures, 2)
	assert.Equal(t, "TCAR:quay1", departures[0].StopID)
	assert.Equal(t, "Gare Quai A", departures[0].StopName)
	assert.Equal(t, "TCAR:quay2", departures[1].StopID)
}

func TestLatestFeedTimestamp(t *testing.T) {
	feeds := []*parse.Realtime{
		{Timestamp: 100},
		{Timestamp: 300},
		{Timestamp: 200},
	}
	assert.Equal(t, int64(300), latestFeedTimestamp(feeds))
	assert.Equal(t, int64(0), latestFeedTimestamp(nil))
}
