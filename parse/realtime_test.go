package parse

import (
	"testing"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func marshalFeed(t *testing.T, feed *gtfsproto.FeedMessage) []byte {
	data, err := proto.Marshal(feed)
	require.NoError(t, err)
	return data
}

func stopTimeUpdate(stopID string, arrival, departure int64) *gtfsproto.TripUpdate_StopTimeUpdate {
	stu := &gtfsproto.TripUpdate_StopTimeUpdate{
		StopId: proto.String(stopID),
	}
	if arrival != 0 {
		stu.Arrival = &gtfsproto.TripUpdate_StopTimeEvent{Time: proto.Int64(arrival)}
	}
	if departure != 0 {
		stu.Departure = &gtfsproto.TripUpdate_StopTimeEvent{Time: proto.Int64(departure)}
	}
	return stu
}

func TestParseRealtimeEmptyFeed(t *testing.T) {
	data := marshalFeed(t, &gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1717401600),
		},
	})

	rt, err := ParseRealtime(data, "http://rt", 0, 2000000000)
	require.NoError(t, err)
	assert.Equal(t, "http://rt", rt.Source)
	assert.Equal(t, uint64(1717401600), rt.Timestamp)
	assert.Empty(t, rt.Updates)
}

func TestParseRealtimeGarbage(t *testing.T) {
	_, err := ParseRealtime([]byte("not a protobuf at all, definitely"), "http://rt", 0, 2000000000)
	assert.Error(t, err)
}

func TestParseRealtimeUpdates(t *testing.T) {
	data := marshalFeed(t, &gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1000),
		},
		Entity: []*gtfsproto.FeedEntity{
			{
				Id: proto.String("e1"),
				TripUpdate: &gtfsproto.TripUpdate{
					Trip: &gtfsproto.TripDescriptor{
						TripId:  proto.String("t1"),
						RouteId: proto.String("r1"),
					},
					StopTimeUpdate: []*gtfsproto.TripUpdate_StopTimeUpdate{
						// Arrival preferred over departure.
						stopTimeUpdate("s1", 1500, 1600),
						// Departure used when arrival is absent.
						stopTimeUpdate("s2", 0, 1700),
						// Outside the window.
						stopTimeUpdate("s3", 5000, 0),
						// No instant at all.
						stopTimeUpdate("s4", 0, 0),
					},
				},
			},
			// Entities without a trip update are skipped.
			{Id: proto.String("e2")},
		},
	})

	rt, err := ParseRealtime(data, "http://rt", 1000, 2000)
	require.NoError(t, err)
	require.Len(t, rt.Updates, 2)

	assert.Equal(t, TripUpdate{
		Source:  "http://rt",
		TripID:  "t1",
		RouteID: "r1",
		StopID:  "s1",
		Unix:    1500,
	}, rt.Updates[0])
	assert.Equal(t, int64(1700), rt.Updates[1].Unix)
	assert.Equal(t, "s2", rt.Updates[1].StopID)
}
