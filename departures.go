package transit

import (
	"fmt"
	"sort"
	"time"

	"buswidget.dev/transit/civil"
	"buswidget.dev/transit/model"
	"buswidget.dev/transit/parse"
)

// Source URL reported for departures derived from the static schedule.
const staticScheduleSource = "gtfs-static-schedule"

type keyedDeparture struct {
	key       string
	departure model.Departure
}

// blendQuery is one blending pass over a fixed target stop set.
type blendQuery struct {
	snap       *model.Snapshot
	feeds      []*parse.Realtime
	requested  *model.StopInfo
	targets    map[string]bool
	lineFilter map[string]bool
	nowUnix    int64
	maxUnix    int64
	limit      int
	location   *time.Location
}

// blendDepartures merges realtime predictions with the static
// schedule. A scheduled departure whose logical key matches a realtime
// one is dropped, so predictions win. The union is sorted by instant
// and trimmed to the limit.
func blendDepartures(q blendQuery) []model.Departure {
	realtime := collectRealtimeDepartures(q)

	realtimeKeys := map[string]bool{}
	for _, item := range realtime {
		realtimeKeys[item.key] = true
	}
	scheduled := collectScheduledDepartures(q, realtimeKeys)

	departures := make([]model.Departure, 0, len(realtime)+len(scheduled))
	for _, item := range realtime {
		departures = append(departures, item.departure)
	}
	for _, item := range scheduled {
		departures = append(departures, item.departure)
	}

	sort.SliceStable(departures, func(i, j int) bool {
		return departures[i].Unix < departures[j].Unix
	})
	if q.limit > 0 && len(departures) > q.limit {
		departures = departures[:q.limit]
	}
	return departures
}

// logicalKey identifies a departure across the realtime and scheduled
// sides of the blend.
func logicalKey(tripID, routeID, line, stopID string, unix int64) string {
	id := tripID
	if id == "" {
		id = routeID
	}
	if id == "" {
		id = line
	}
	return fmt.Sprintf("%s|%s|%d", id, stopID, unix)
}

func collectRealtimeDepartures(q blendQuery) []keyedDeparture {
	departures := []keyedDeparture{}
	seen := map[string]bool{}

	for _, feed := range q.feeds {
		for _, update := range feed.Updates {
			if !q.targets[update.StopID] {
				continue
			}
			if update.Unix < q.nowUnix || update.Unix > q.maxUnix {
				continue
			}

			routeID := update.RouteID
			var fallbackHeadsign string
			if trip, ok := q.snap.Trips[update.TripID]; ok {
				if routeID == "" {
					routeID = trip.RouteID
				}
				fallbackHeadsign = trip.Headsign
			}

			dedupeKey := fmt.Sprintf("%s|%s|%s|%s|%d",
				feed.Source, routeID, update.TripID, update.StopID, update.Unix)
			if seen[dedupeKey] {
				continue
			}
			seen[dedupeKey] = true

			routeInfo := q.snap.Routes[routeID]
			line := model.DefaultString
			if routeInfo != nil && routeInfo.ShortName != "" {
				line = routeInfo.ShortName
			} else if routeID != "" {
				line = routeID
			}

			if len(q.lineFilter) > 0 && !q.lineFilter[model.NormalizeLineName(line)] {
				continue
			}

			stopName := model.DefaultString
			if stopInfo, ok := q.snap.Stops[update.StopID]; ok {
				stopName = stopInfo.Name
			} else if q.requested != nil {
				stopName = q.requested.Name
			}

			destination := fallbackHeadsign
			if destination == "" && routeInfo != nil {
				destination = routeInfo.LongName
			}
			if destination == "" {
				destination = model.DefaultString
			}

			departures = append(departures, keyedDeparture{
				key: logicalKey(update.TripID, routeID, line, update.StopID, update.Unix),
				departure: model.Departure{
					StopID:       update.StopID,
					StopName:     stopName,
					RouteID:      routeID,
					Line:         line,
					LineColor:    lineColorFor(q.snap, routeInfo, line),
					Destination:  destination,
					Unix:         update.Unix,
					ISO:          model.ISOTime(update.Unix),
					MinutesUntil: model.MinutesUntil(update.Unix, q.nowUnix),
					Source:       feed.Source,
					IsRealtime:   true,
				},
			})
		}
	}

	sort.SliceStable(departures, func(i, j int) bool {
		return departures[i].departure.Unix < departures[j].departure.Unix
	})
	return departures
}

func collectScheduledDepartures(q blendQuery, existingKeys map[string]bool) []keyedDeparture {
	candidateDates := civil.CandidateDateKeys(q.nowUnix, q.maxUnix, q.location)

	departures := []keyedDeparture{}
	seen := map[string]bool{}

	for stopID := range q.targets {
		stopInfo := q.snap.Stops[stopID]
		if stopInfo == nil {
			stopInfo = q.requested
		}

		for _, stopTime := range q.snap.StopTimesByStop[stopID] {
			trip, ok := q.snap.Trips[stopTime.TripID]
			if !ok || trip.ServiceID == "" {
				continue
			}

			routeInfo := q.snap.Routes[trip.RouteID]
			line := model.DefaultString
			if routeInfo != nil && routeInfo.ShortName != "" {
				line = routeInfo.ShortName
			} else if trip.RouteID != "" {
				line = trip.RouteID
			}
			if len(q.lineFilter) > 0 && !q.lineFilter[model.NormalizeLineName(line)] {
				continue
			}

			for _, dateKey := range candidateDates {
				if !q.snap.ServiceActiveOn(trip.ServiceID, int(dateKey)) {
					continue
				}

				unix := civil.Unix(dateKey, stopTime.DepartureSeconds, q.location)
				if unix < q.nowUnix || unix > q.maxUnix {
					continue
				}

				key := logicalKey(stopTime.TripID, trip.RouteID, line, stopID, unix)
				if existingKeys[key] || seen[key] {
					continue
				}
				seen[key] = true

				destination := stopTime.StopHeadsign
				if destination == "" {
					destination = trip.Headsign
				}
				if destination == "" && routeInfo != nil {
					destination = routeInfo.LongName
				}
				if destination == "" {
					destination = model.DefaultString
				}

				stopName := model.DefaultString
				if stopInfo != nil {
					stopName = stopInfo.Name
				}

				departures = append(departures, keyedDeparture{
					key: key,
					departure: model.Departure{
						StopID:       stopID,
						StopName:     stopName,
						RouteID:      trip.RouteID,
						Line:         line,
						LineColor:    lineColorFor(q.snap, routeInfo, line),
						Destination:  destination,
						Unix:         unix,
						ISO:          model.ISOTime(unix),
						MinutesUntil: model.MinutesUntil(unix, q.nowUnix),
						Source:       staticScheduleSource,
						IsRealtime:   false,
					},
				})
			}
		}
	}

	sort.SliceStable(departures, func(i, j int) bool {
		return departures[i].departure.Unix < departures[j].departure.Unix
	})
	return departures
}

func lineColorFor(snap *model.Snapshot, route *model.RouteInfo, line string) string {
	if route != nil && route.Color != "" {
		return route.Color
	}
	return snap.ColorByLine[model.NormalizeLineName(line)]
}

// latestFeedTimestamp is the freshest header timestamp across the
// realtime feeds.
func latestFeedTimestamp(feeds []*parse.Realtime) int64 {
	var latest int64
	for _, feed := range feeds {
		if ts := int64(feed.Timestamp); ts > latest {
			latest = ts
		}
	}
	return latest
}
