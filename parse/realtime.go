package parse

import (
	"fmt"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// A single predicted departure from a trip update feed.
type TripUpdate struct {
	Source  string // feed URL, part of the dedup key
	TripID  string
	RouteID string
	StopID  string
	Unix    int64 // predicted departure instant
}

// Decoded realtime feed, trimmed down to what departure blending
// needs.
type Realtime struct {
	Source    string
	Timestamp uint64
	Updates   []TripUpdate
}

// ParseRealtime decodes a GTFS-RT FeedMessage. Per stop-time update
// the arrival time is preferred over the departure time; wire values
// are int64 seconds. Records outside [windowStart, windowEnd] are
// discarded here rather than during blending.
func ParseRealtime(data []byte, source string, windowStart, windowEnd int64) (*Realtime, error) {
	feed := &gtfsproto.FeedMessage{}
	if err := proto.Unmarshal(data, feed); err != nil {
		return nil, fmt.Errorf("unmarshaling protobuf: %w", err)
	}

	rt := &Realtime{
		Source:    source,
		Timestamp: feed.GetHeader().GetTimestamp(),
		Updates:   []TripUpdate{},
	}

	for _, entity := range feed.GetEntity() {
		tripUpdate := entity.GetTripUpdate()
		if tripUpdate == nil {
			continue
		}

		trip := tripUpdate.GetTrip()
		tripID := trip.GetTripId()
		routeID := trip.GetRouteId()

		for _, stu := range tripUpdate.GetStopTimeUpdate() {
			stopID := stu.GetStopId()
			if stopID == "" {
				continue
			}

			unix := eventUnix(stu)
			if unix == 0 || unix < windowStart || unix > windowEnd {
				continue
			}

			rt.Updates = append(rt.Updates, TripUpdate{
				Source:  source,
				TripID:  tripID,
				RouteID: routeID,
				StopID:  stopID,
				Unix:    unix,
			})
		}
	}

	return rt, nil
}

// eventUnix picks the prediction instant for a stop-time update:
// arrival time when present, departure time otherwise.
func eventUnix(stu *gtfsproto.TripUpdate_StopTimeUpdate) int64 {
	if arrival := stu.GetArrival(); arrival != nil && arrival.GetTime() != 0 {
		return arrival.GetTime()
	}
	if departure := stu.GetDeparture(); departure != nil && departure.GetTime() != 0 {
		return departure.GetTime()
	}
	return 0
}
