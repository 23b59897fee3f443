package cityway

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"buswidget.dev/transit/civil"
	"buswidget.dev/transit/model"
)

var (
	ErrMissingCoordinates    = errors.New("missing stop coordinates for schedule lookup")
	ErrLogicalStopUnresolved = errors.New("unable to resolve logical stop id")
)

// Bridge resolves departures for stops whose network is served by the
// Cityway APIs rather than a GTFS feed.
type Bridge struct {
	Client   *Client
	Location *time.Location
}

func NewBridge(client *Client, loc *time.Location) *Bridge {
	return &Bridge{Client: client, Location: loc}
}

// StopQuery carries everything the bridge needs to resolve a stop's
// departures without reaching back into the static snapshot.
type StopQuery struct {
	Stop        *model.StopInfo
	TargetStops []*model.StopInfo // the stop itself, or a station's children
	LineFilter  map[string]bool   // normalized line names; empty means no filter
	NowUnix     int64
	MaxUnix     int64
	Limit       int
	ColorByLine map[string]string // fallback colors from the static feed
}

// StopDepartures maps a static stop onto the provider's physical stop
// graph and reads the realtime board of its logical stop. Departures
// at physical points that belong to other stops in the query are
// attributed back to those stops.
func (b *Bridge) StopDepartures(ctx context.Context, q StopQuery) ([]model.Departure, error) {
	pivotLat, pivotLon, ok := q.Stop.Coordinates()
	if !ok {
		for _, target := range q.TargetStops {
			if pivotLat, pivotLon, ok = target.Coordinates(); ok {
				break
			}
		}
	}
	if !ok {
		return nil, ErrMissingCoordinates
	}

	points, err := b.Client.TripPointsNear(ctx, pivotLat, pivotLon)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return []model.Departure{}, nil
	}

	stopIDByPhysical := map[int64]string{}
	allowedPhysical := map[int64]bool{}
	var requestedPhysical int64

	for _, target := range q.TargetStops {
		physicalID, ok := MapStopToPhysical(target, points)
		if !ok {
			continue
		}
		allowedPhysical[physicalID] = true
		stopIDByPhysical[physicalID] = target.ID
		if target.ID == q.Stop.ID {
			requestedPhysical = physicalID
		}
	}

	if requestedPhysical == 0 {
		requestedPhysical, _ = MapStopToPhysical(q.Stop, points)
	}

	pivot := points[0]
	for _, p := range points {
		if p.ID == requestedPhysical {
			pivot = p
			break
		}
	}
	if pivot.LogicalStopID == 0 {
		return nil, ErrLogicalStopUnresolved
	}

	payload, err := b.Client.NextDepartures(ctx, pivot.LogicalStopID, pivotLat, pivotLon)
	if err != nil {
		return nil, err
	}

	return b.departuresFromBoard(payload, q, stopIDByPhysical, allowedPhysical), nil
}

func (b *Bridge) departuresFromBoard(payload *NextDeparturesPayload, q StopQuery, stopIDByPhysical map[int64]string, allowedPhysical map[int64]bool) []model.Departure {
	stopByID := map[string]*model.StopInfo{q.Stop.ID: q.Stop}
	for _, target := range q.TargetStops {
		stopByID[target.ID] = target
	}

	departures := []model.Departure{}
	seen := map[string]bool{}

	for _, group := range payload.Groups {
		for _, entry := range group.Lines {
			if entry.Line == nil {
				continue
			}
			lineNumber := trimmed(entry.Line.Number)
			if lineNumber == "" {
				continue
			}
			normalizedLine := model.NormalizeLineName(lineNumber)
			if len(q.LineFilter) > 0 && !q.LineFilter[normalizedLine] {
				continue
			}

			routeID := lineNumber
			if entry.Line.ID != 0 {
				routeID = strconv.FormatInt(int64(entry.Line.ID), 10)
			}
			lineColor := model.NormalizeHexColor(entry.Line.Color)
			if lineColor == "" {
				lineColor = q.ColorByLine[normalizedLine]
			}

			var physicalID int64
			if entry.Stop != nil && entry.Stop.ID != nil {
				physicalID = int64(*entry.Stop.ID)
			}
			if len(allowedPhysical) > 0 && !allowedPhysical[physicalID] {
				continue
			}

			for _, t := range entry.Times {
				effective := trimmed(t.RealDateTime)
				if effective == "" {
					effective = trimmed(t.DateTime)
				}
				unix, err := civil.ParseLocalDateTime(effective, b.Location)
				if err != nil || unix < q.NowUnix || unix > q.MaxUnix {
					continue
				}

				destination := model.DefaultString
				if t.Destination != nil && trimmed(t.Destination.Name) != "" {
					destination = trimmed(t.Destination.Name)
				} else if entry.Direction != nil && trimmed(entry.Direction.Name) != "" {
					destination = trimmed(entry.Direction.Name)
				} else if trimmed(entry.Line.Name) != "" {
					destination = trimmed(entry.Line.Name)
				}

				key := fmt.Sprintf("%s|%d|%s|%d", lineNumber, physicalID, destination, unix)
				if seen[key] {
					continue
				}
				seen[key] = true

				mappedStopID := q.Stop.ID
				if id, ok := stopIDByPhysical[physicalID]; ok {
					mappedStopID = id
				}
				stopName := q.Stop.Name
				if info, ok := stopByID[mappedStopID]; ok {
					stopName = info.Name
				}

				departures = append(departures, model.Departure{
					StopID:       mappedStopID,
					StopName:     stopName,
					RouteID:      routeID,
					Line:         lineNumber,
					LineColor:    lineColor,
					Destination:  destination,
					Unix:         unix,
					ISO:          model.ISOTime(unix),
					MinutesUntil: model.MinutesUntil(unix, q.NowUnix),
					Source:       payload.SourceURL,
					IsRealtime:   trimmed(t.RealDateTime) != "",
				})
			}
		}
	}

	sort.Slice(departures, func(i, j int) bool { return departures[i].Unix < departures[j].Unix })
	if q.Limit > 0 && len(departures) > q.Limit {
		departures = departures[:q.Limit]
	}
	return departures
}

// LogicalQuery addresses a logical stop directly, bypassing the static
// feed entirely.
type LogicalQuery struct {
	LogicalStopID int64
	LineFilter    map[string]bool
	NowUnix       int64
	MaxUnix       int64
	Limit         int
}

// LogicalStopDepartures reads the timetable of a logical stop and
// returns its synthesized stop record, the departures within the
// window, and the provider's server time when it reported one.
func (b *Bridge) LogicalStopDepartures(ctx context.Context, q LogicalQuery) (*model.StopInfo, []model.Departure, int64, error) {
	maxItems := q.Limit
	if maxItems <= 0 {
		maxItems = 20
	}
	payload, err := b.Client.NextStopHours(ctx, q.LogicalStopID, maxItems)
	if err != nil {
		return nil, nil, 0, err
	}

	stop := LogicalStopInfo(q.LogicalStopID, payload.Data)
	departures := b.departuresFromTimetable(payload, q)

	var serverUnix int64
	if payload.Data != nil {
		serverUnix, _ = ParseServerTime(payload.Data.ServerTime)
	}
	return stop, departures, serverUnix, nil
}

func (b *Bridge) departuresFromTimetable(payload *TimetablePayload, q LogicalQuery) []model.Departure {
	departures := []model.Departure{}
	if payload.Data == nil {
		return departures
	}
	data := payload.Data

	linesByID := map[int64]*TimetableLine{}
	for i := range data.Lines {
		linesByID[int64(data.Lines[i].ID)] = &data.Lines[i]
	}
	stopsByID := map[int64]*TimetableStop{}
	for i := range data.Stops {
		stopsByID[int64(data.Stops[i].ID)] = &data.Stops[i]
	}
	journeysByID := map[int64]*TimetableVehicleJourney{}
	for i := range data.VehicleJourneys {
		journeysByID[int64(data.VehicleJourneys[i].ID)] = &data.VehicleJourneys[i]
	}

	seen := map[string]bool{}
	for _, hour := range data.Hours {
		if hour.IsCancelled {
			continue
		}

		unix, ok := b.timetableDepartureUnix(hour, q.NowUnix)
		if !ok || unix < q.NowUnix || unix > q.MaxUnix {
			continue
		}

		lineInfo := linesByID[int64(hour.LineID)]
		lineNumber := ""
		if lineInfo != nil {
			lineNumber = trimmed(lineInfo.Number)
			if lineNumber == "" {
				lineNumber = trimmed(lineInfo.Name)
			}
		}
		if lineNumber == "" && hour.LineID != 0 {
			lineNumber = strconv.FormatInt(int64(hour.LineID), 10)
		}
		if lineNumber == "" {
			continue
		}

		normalizedLine := model.NormalizeLineName(lineNumber)
		if len(q.LineFilter) > 0 && !q.LineFilter[normalizedLine] {
			continue
		}

		var stopID int64
		if hour.StopID != nil {
			stopID = int64(*hour.StopID)
		}
		stopInfo := stopsByID[stopID]
		journeyInfo := journeysByID[int64(hour.VehicleJourneyID)]

		destination := model.DefaultString
		if journeyInfo != nil && trimmed(journeyInfo.JourneyDestination) != "" {
			destination = trimmed(journeyInfo.JourneyDestination)
		} else if stopInfo != nil && trimmed(stopInfo.Name) != "" {
			destination = trimmed(stopInfo.Name)
		} else if lineInfo != nil && trimmed(lineInfo.Name) != "" {
			destination = trimmed(lineInfo.Name)
		}

		key := fmt.Sprintf("%s|%d|%s|%d", lineNumber, stopID, destination, unix)
		if seen[key] {
			continue
		}
		seen[key] = true

		isRealtime := hour.RealTimeStatus != 0 || hour.RealDepartureTime != nil ||
			(hour.PredictedDeparture != nil &&
				(hour.TheoricDepartureTime == nil || *hour.PredictedDeparture != *hour.TheoricDepartureTime))

		departureStopID := fmt.Sprintf("CITYWAY:logical:%d", q.LogicalStopID)
		if stopID != 0 {
			departureStopID = fmt.Sprintf("CITYWAY:%d", stopID)
		}
		stopName := model.DefaultString
		if stopInfo != nil && trimmed(stopInfo.Name) != "" {
			stopName = trimmed(stopInfo.Name)
		}
		routeID := lineNumber
		if hour.LineID != 0 {
			routeID = strconv.FormatInt(int64(hour.LineID), 10)
		}
		lineColor := ""
		if lineInfo != nil {
			lineColor = model.NormalizeHexColor(lineInfo.Color)
		}

		departures = append(departures, model.Departure{
			StopID:       departureStopID,
			StopName:     stopName,
			RouteID:      routeID,
			Line:         lineNumber,
			LineColor:    lineColor,
			Destination:  destination,
			Unix:         unix,
			ISO:          model.ISOTime(unix),
			MinutesUntil: model.MinutesUntil(unix, q.NowUnix),
			Source:       payload.SourceURL,
			IsRealtime:   isRealtime,
		})
	}

	sort.Slice(departures, func(i, j int) bool { return departures[i].Unix < departures[j].Unix })
	if q.Limit > 0 && len(departures) > q.Limit {
		departures = departures[:q.Limit]
	}
	return departures
}

// timetableDepartureUnix resolves a timetable row's best clock reading
// to an instant on the current civil day, rolling forward a day when
// the clock has already wrapped past midnight.
func (b *Bridge) timetableDepartureUnix(hour TimetableHour, nowUnix int64) (int64, bool) {
	clock := hour.RealDepartureTime
	if clock == nil {
		clock = hour.PredictedDeparture
	}
	if clock == nil {
		clock = hour.AimedDepartureTime
	}
	if clock == nil {
		clock = hour.TheoricDepartureTime
	}
	if clock == nil {
		return 0, false
	}

	seconds, ok := clockSeconds(int64(*clock))
	if !ok {
		return 0, false
	}

	dateKey := civil.DateKeyAt(nowUnix, b.Location)
	unix := civil.Unix(dateKey, seconds, b.Location)
	if unix < nowUnix-1800 {
		unix += 86400
	}
	return unix, true
}

// clockSeconds converts the provider's HHMM clock encoding (e.g. 1435
// for 14:35) to seconds since midnight.
func clockSeconds(hhmm int64) (int, bool) {
	if hhmm < 0 {
		return 0, false
	}
	hours := hhmm / 100
	minutes := hhmm % 100
	return int(hours*3600 + minutes*60), true
}

// MapStopToPhysical picks the trip point closest to the stop. Stops
// without coordinates fall back to a normalized name match, then to
// the first point.
func MapStopToPhysical(stop *model.StopInfo, points []TripPoint) (int64, bool) {
	if len(points) == 0 {
		return 0, false
	}

	lat, lon, ok := stop.Coordinates()
	if !ok {
		normName := model.NormalizeForSearch(stop.Name)
		for _, p := range points {
			if model.NormalizeForSearch(p.Name) == normName {
				return p.ID, true
			}
		}
		return points[0].ID, true
	}

	best := points[0]
	bestScore := squaredDistance(best, lat, lon)
	for _, p := range points[1:] {
		if score := squaredDistance(p, lat, lon); score < bestScore {
			bestScore = score
			best = p
		}
	}
	return best.ID, true
}

func squaredDistance(p TripPoint, lat, lon float64) float64 {
	dLat := p.Latitude - lat
	dLon := p.Longitude - lon
	return dLat*dLat + dLon*dLon
}

// LogicalStopInfo synthesizes a station record for a logical stop from
// its timetable payload. Returns nil when the payload names no stops.
func LogicalStopInfo(logicalStopID int64, data *TimetableData) *model.StopInfo {
	if data == nil || len(data.Stops) == 0 {
		return nil
	}

	candidate := &data.Stops[0]
	for i := range data.Stops {
		if int64(data.Stops[i].LogicalID) == logicalStopID {
			candidate = &data.Stops[i]
			break
		}
	}

	name := trimmed(candidate.Name)
	if name == "" {
		name = fmt.Sprintf("Logical stop %d", logicalStopID)
	}
	lat := float64(candidate.Latitude)
	lon := float64(candidate.Longitude)

	return &model.StopInfo{
		ID:             fmt.Sprintf("CITYWAY:logical:%d", logicalStopID),
		Name:           name,
		Lat:            &lat,
		Lon:            &lon,
		Code:           trimmed(candidate.Code),
		LocationType:   model.LocationTypeStation,
		TransportModes: []string{},
		LineHints:      []string{},
		LineHintColors: map[string]string{},
	}
}

var serverTimeRe = regexp.MustCompile(`^/Date\((\d+)(?:[+-]\d{4})?\)/$`)

// ParseServerTime decodes the provider's "/Date(ms+0200)/" timestamp.
func ParseServerTime(s string) (int64, bool) {
	m := serverTimeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return ms / 1000, true
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
