// Package transit resolves upcoming public transport departures for
// the Rouen area networks, blending a static schedule feed with
// realtime trip updates and an external journey-planner bridge.
package transit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"buswidget.dev/transit/cityway"
	"buswidget.dev/transit/model"
)

// Service is the operation surface consumed by front ends. Construct
// one at startup with its collaborators injected; the zero value is
// not usable.
type Service struct {
	Manager        *Manager
	Bridge         *cityway.Bridge
	StaticURL      string
	TripUpdateURLs []string

	// Networks lists the stop ID prefixes whose departures come from
	// the external bridge instead of the GTFS feeds.
	CitywayNetworks map[string]bool

	Location *time.Location
	Logger   *zap.Logger
	TimeNow  func() time.Time
}

type SearchResponse struct {
	Count   int               `json:"count"`
	Results []*model.StopInfo `json:"results"`
}

type NearbyResponse struct {
	Count   int          `json:"count"`
	Results []NearbyStop `json:"results"`
}

type StopDeparturesResponse struct {
	GeneratedAtUnix   int64             `json:"generatedAtUnix"`
	FeedTimestampUnix int64             `json:"feedTimestampUnix"`
	Stop              *model.StopInfo   `json:"stop"`
	Departures        []model.Departure `json:"departures"`
}

func (s *Service) now() time.Time {
	if s.TimeNow != nil {
		return s.TimeNow()
	}
	return time.Now()
}

func (s *Service) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

// SearchStops ranks stops matching a free-text query.
func (s *Service) SearchStops(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	snap, err := s.Manager.LoadStatic(ctx, s.StaticURL)
	if err != nil {
		return nil, err
	}

	results := SearchStops(snap, query, limit)
	return &SearchResponse{Count: len(results), Results: results}, nil
}

// SearchNearby lists stops close to a coordinate, nearest first.
func (s *Service) SearchNearby(ctx context.Context, lat, lon float64, limit int) (*NearbyResponse, error) {
	snap, err := s.Manager.LoadStatic(ctx, s.StaticURL)
	if err != nil {
		return nil, err
	}

	results := SearchNearby(snap, lat, lon, limit)
	return &NearbyResponse{Count: len(results), Results: results}, nil
}

// GetDepartures resolves the upcoming departures for a stop. An
// unknown stop ID yields a response with a nil stop and no departures
// rather than an error, since widgets poll with stale IDs after feed
// updates.
func (s *Service) GetDepartures(ctx context.Context, stopID string, limit, maxMinutesAhead int, lines []string) (*StopDeparturesResponse, error) {
	nowUnix := s.now().Unix()
	maxUnix := nowUnix + int64(maxMinutesAhead)*60
	lineFilter := normalizeLineFilter(lines)

	snap, err := s.Manager.LoadStatic(ctx, s.StaticURL)
	if err != nil {
		return nil, err
	}

	requested := snap.Stops[stopID]
	if requested == nil {
		return &StopDeparturesResponse{
			GeneratedAtUnix:   nowUnix,
			FeedTimestampUnix: nowUnix,
			Stop:              nil,
			Departures:        []model.Departure{},
		}, nil
	}

	if s.Bridge != nil && s.CitywayNetworks[model.Provider(stopID)] {
		return s.bridgeDepartures(ctx, snap, requested, lineFilter, nowUnix, maxUnix, limit)
	}

	feeds, err := s.Manager.LoadRealtime(ctx, s.TripUpdateURLs, nowUnix, maxUnix)
	if err != nil {
		return nil, err
	}

	targets := map[string]bool{stopID: true}
	if requested.IsStation() {
		for _, childID := range snap.ChildrenByParent[stopID] {
			targets[childID] = true
		}
	}

	query := blendQuery{
		snap:       snap,
		feeds:      feeds,
		requested:  requested,
		targets:    targets,
		lineFilter: lineFilter,
		nowUnix:    nowUnix,
		maxUnix:    maxUnix,
		limit:      limit,
		location:   s.Location,
	}
	departures := blendDepartures(query)

	// A boarding point with no departures widens to its siblings, but
	// only when no line filter narrowed the result.
	if len(departures) == 0 && !requested.IsStation() &&
		requested.ParentStationID != "" && len(lineFilter) == 0 {
		siblings := map[string]bool{stopID: true}
		for _, siblingID := range snap.ChildrenByParent[requested.ParentStationID] {
			siblings[siblingID] = true
		}
		query.targets = siblings
		departures = blendDepartures(query)
	}

	return &StopDeparturesResponse{
		GeneratedAtUnix:   nowUnix,
		FeedTimestampUnix: latestFeedTimestamp(feeds),
		Stop:              requested,
		Departures:        departures,
	}, nil
}

func (s *Service) bridgeDepartures(ctx context.Context, snap *model.Snapshot, requested *model.StopInfo, lineFilter map[string]bool, nowUnix, maxUnix int64, limit int) (*StopDeparturesResponse, error) {
	targets := []*model.StopInfo{}
	if requested.IsStation() {
		for _, childID := range snap.ChildrenByParent[requested.ID] {
			if child := snap.Stops[childID]; child != nil {
				targets = append(targets, child)
			}
		}
	}
	if len(targets) == 0 {
		targets = append(targets, requested)
	}

	departures, err := s.Bridge.StopDepartures(ctx, cityway.StopQuery{
		Stop:        requested,
		TargetStops: targets,
		LineFilter:  lineFilter,
		NowUnix:     nowUnix,
		MaxUnix:     maxUnix,
		Limit:       limit,
		ColorByLine: snap.ColorByLine,
	})
	if err != nil {
		return nil, err
	}

	return &StopDeparturesResponse{
		GeneratedAtUnix:   nowUnix,
		FeedTimestampUnix: nowUnix,
		Stop:              requested,
		Departures:        departures,
	}, nil
}

// GetLogicalStopDepartures reads departures for one of the external
// provider's logical stops, with no static feed involved. The feed
// timestamp is the provider's server time when it reports one.
func (s *Service) GetLogicalStopDepartures(ctx context.Context, logicalStopID int64, limit, maxMinutesAhead int, lines []string) (*StopDeparturesResponse, error) {
	nowUnix := s.now().Unix()
	maxUnix := nowUnix + int64(maxMinutesAhead)*60

	stop, departures, serverUnix, err := s.Bridge.LogicalStopDepartures(ctx, cityway.LogicalQuery{
		LogicalStopID: logicalStopID,
		LineFilter:    normalizeLineFilter(lines),
		NowUnix:       nowUnix,
		MaxUnix:       maxUnix,
		Limit:         limit,
	})
	if err != nil {
		return nil, err
	}

	feedTimestamp := serverUnix
	if feedTimestamp == 0 {
		feedTimestamp = nowUnix
	}

	s.logger().Debug("logical stop departures resolved",
		zap.Int64("logicalStopId", logicalStopID),
		zap.Int("departures", len(departures)))

	return &StopDeparturesResponse{
		GeneratedAtUnix:   nowUnix,
		FeedTimestampUnix: feedTimestamp,
		Stop:              stop,
		Departures:        departures,
	}, nil
}

func normalizeLineFilter(lines []string) map[string]bool {
	filter := map[string]bool{}
	for _, line := range lines {
		if normalized := model.NormalizeLineName(line); normalized != "" {
			filter[normalized] = true
		}
	}
	return filter
}
