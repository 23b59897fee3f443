package testutil

// Helpers and fixtures for tests.

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"buswidget.dev/transit/model"
	"buswidget.dev/transit/parse"
)

// BuildZip packs the given files, each a slice of lines, into a zip
// archive.
func BuildZip(t testing.TB, files map[string][]string) []byte {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for filename, content := range files {
		f, err := w.Create(filename)
		require.NoError(t, err)
		_, err = f.Write([]byte(strings.Join(content, "\n")))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

// ValidFeed is a minimal feed with one stop, route, trip and weekday
// service, good as a starting point for most tests.
func ValidFeed() map[string][]string {
	return map[string][]string{
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"TCAR:s1,Gare Rue Verte,49.443,1.094",
		},
		"routes.txt": {
			"route_id,route_short_name,route_long_name,route_type",
			"r1,F1,Plaine - Centre,3",
		},
		"trips.txt": {
			"route_id,service_id,trip_id,trip_headsign",
			"r1,weekdays,t1,Plaine de la Ronce",
		},
		"stop_times.txt": {
			"trip_id,departure_time,stop_id,stop_sequence",
			"t1,08:00:00,TCAR:s1,1",
		},
		"calendar.txt": {
			"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date",
			"weekdays,1,1,1,1,1,0,0,20240101,20261231",
		},
	}
}

// LoadSnapshot builds a zip from the files and parses it.
func LoadSnapshot(t testing.TB, files map[string][]string) *model.Snapshot {
	snap, err := parse.ParseStatic(BuildZip(t, files), parse.Options{
		FetchedAt: time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return snap
}

// Paris returns the Europe/Paris location.
func Paris(t testing.TB) *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return loc
}
