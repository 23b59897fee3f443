// Package cityway talks to the Cityway journey-planner APIs that back
// the regional network, and converts their payloads into departures.
package cityway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"buswidget.dev/transit/timedcache"
)

const (
	DefaultTransportBaseURL = "https://api.mrn.cityway.fr"
	DefaultTimetableBaseURL = "https://tsvc.mrn.cityway.fr"

	tripPointCacheTTL        = 300 * time.Second
	tripPointCacheMaxEntries = 256
	tripPointBoxDelta        = 0.0015

	userRequestRef = "buswidget-api"
)

type Client struct {
	// TransportBaseURL hosts trip points and the media next-departure
	// API, TimetableBaseURL the GetNextStopHours timetable.
	TransportBaseURL string
	TimetableBaseURL string

	HTTPClient *http.Client
	TimeNow    func() time.Time

	tripPoints *timedcache.Cache[string, []TripPoint]
}

func NewClient() *Client {
	c := &Client{
		TransportBaseURL: DefaultTransportBaseURL,
		TimetableBaseURL: DefaultTimetableBaseURL,
		HTTPClient:       &http.Client{Timeout: 15 * time.Second},
		TimeNow:          time.Now,
		tripPoints:       timedcache.New[string, []TripPoint](tripPointCacheMaxEntries),
	}
	c.tripPoints.TimeNow = func() time.Time { return c.TimeNow() }
	return c
}

// TripPointsNear returns the physical boarding points within a small
// bounding box around the coordinate, deduplicated by point id.
// Results are cached per rounded coordinate; on a refresh failure a
// previously fetched set is reused.
func (c *Client) TripPointsNear(ctx context.Context, lat, lon float64) ([]TripPoint, error) {
	key := fmt.Sprintf("%.5f:%.5f", lat, lon)

	points, err := c.tripPoints.Get(ctx, key, tripPointCacheTTL, func(ctx context.Context) ([]TripPoint, error) {
		return c.fetchTripPoints(ctx, lat, lon)
	})
	if err != nil {
		if stale, ok := c.tripPoints.Stale(key); ok {
			return stale, nil
		}
		return nil, err
	}
	return points, nil
}

func (c *Client) fetchTripPoints(ctx context.Context, lat, lon float64) ([]TripPoint, error) {
	query := url.Values{}
	query.Set("MinimumLatitude", formatCoordinate(lat-tripPointBoxDelta))
	query.Set("MinimumLongitude", formatCoordinate(lon-tripPointBoxDelta))
	query.Set("MaximumLatitude", formatCoordinate(lat+tripPointBoxDelta))
	query.Set("MaximumLongitude", formatCoordinate(lon+tripPointBoxDelta))
	query.Set("PointTypes", "5")
	query.Set("UserLat", formatCoordinate(lat))
	query.Set("UserLon", formatCoordinate(lon))

	endpoint := c.TransportBaseURL + "/api/transport/v3/trippoint/GetTripPointsByBoundingBox?" + query.Encode()

	var payload tripPointResponse
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("trip points lookup: %w", err)
	}

	return dedupeTripPoints(payload.Data), nil
}

// NextDepartures fetches the realtime next-departure board for a
// logical stop from the media API.
func (c *Client) NextDepartures(ctx context.Context, logicalStopID int64, userLat, userLon float64) (*NextDeparturesPayload, error) {
	query := url.Values{}
	query.Set("realTime", "true")
	query.Set("lineId", "")
	query.Set("direction", "")
	query.Set("userLat", formatCoordinate(userLat))
	query.Set("userLon", formatCoordinate(userLon))
	query.Set("userId", "TSI_MRN")

	endpoint := fmt.Sprintf("%s/media/api/v1/en/Schedules/LogicalStop/%d/NextDeparture?%s",
		c.TransportBaseURL, logicalStopID, query.Encode())

	var groups []LogicalStopGroup
	if err := c.getJSON(ctx, endpoint, &groups); err != nil {
		return nil, fmt.Errorf("logical stop departures: %w", err)
	}

	return &NextDeparturesPayload{Groups: groups, SourceURL: endpoint}, nil
}

// NextStopHours fetches the upcoming timetable rows for a logical
// stop. maxItems is clamped to the bounds the service accepts.
func (c *Client) NextStopHours(ctx context.Context, logicalStopID int64, maxItems int) (*TimetablePayload, error) {
	bounded := clamp(maxItems, 5, 120)

	query := url.Values{}
	query.Set("LogicalStopIds", strconv.FormatInt(logicalStopID, 10))
	query.Set("MaxItemsByStop", strconv.Itoa(bounded))
	query.Set("MaxTotalItems", strconv.Itoa(clamp(bounded*3, 20, 200)))
	query.Set("MaxLines", "20")
	query.Set("MaxItemsByLine", strconv.Itoa(clamp(bounded, 6, 20)))
	query.Set("TimeTableType", "2")
	query.Set("Lang", "en")
	query.Set("UserRequestRef", userRequestRef)

	endpoint := c.TimetableBaseURL + "/api/transport/v3/timetable/GetNextStopHours/json?" + query.Encode()

	var envelope timetableEnvelope
	if err := c.getJSON(ctx, endpoint, &envelope); err != nil {
		return nil, fmt.Errorf("timetable lookup: %w", err)
	}
	if envelope.StatusCode >= 400 {
		if envelope.Message != "" {
			return nil, fmt.Errorf("timetable lookup: status %d: %s", envelope.StatusCode, envelope.Message)
		}
		return nil, fmt.Errorf("timetable lookup: status %d", envelope.StatusCode)
	}

	return &TimetablePayload{Data: envelope.Data, SourceURL: endpoint}, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", endpoint, resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func dedupeTripPoints(points []TripPoint) []TripPoint {
	seen := map[int64]bool{}
	out := make([]TripPoint, 0, len(points))
	for _, p := range points {
		if p.ID == 0 || p.LogicalStopID == 0 || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
