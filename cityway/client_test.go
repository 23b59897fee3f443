package cityway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongLikeDecoding(t *testing.T) {
	var payload struct {
		A LongLike  `json:"a"`
		B LongLike  `json:"b"`
		C LongLike  `json:"c"`
		D LongLike  `json:"d"`
		E FloatLike `json:"e"`
	}
	err := json.Unmarshal([]byte(`{"a":42,"b":"43","c":null,"d":"bogus","e":"49.443"}`), &payload)
	require.NoError(t, err)

	assert.Equal(t, LongLike(42), payload.A)
	assert.Equal(t, LongLike(43), payload.B)
	assert.Equal(t, LongLike(0), payload.C)
	assert.Equal(t, LongLike(0), payload.D)
	assert.InDelta(t, 49.443, float64(payload.E), 0.0001)
}

func queryFloat(t *testing.T, query url.Values, key string) float64 {
	v, err := strconv.ParseFloat(query.Get(key), 64)
	require.NoError(t, err)
	return v
}

func testClient(t *testing.T, handler http.Handler) (*Client, *time.Time) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	now := time.Unix(1717401600, 0)
	c := NewClient()
	c.TransportBaseURL = server.URL
	c.TimetableBaseURL = server.URL
	c.TimeNow = func() time.Time { return now }
	return c, &now
}

func TestTripPointsNearDedupesAndCaches(t *testing.T) {
	requests := 0
	var query url.Values

	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		query = r.URL.Query()
		json.NewEncoder(w).Encode(tripPointResponse{Data: []TripPoint{
			{ID: 1, LogicalStopID: 100, Latitude: 49.443, Longitude: 1.094, Name: "Gare"},
			{ID: 1, LogicalStopID: 100, Latitude: 49.443, Longitude: 1.094, Name: "Gare"},
			{ID: 0, LogicalStopID: 100, Name: "no physical id"},
			{ID: 2, LogicalStopID: 0, Name: "no logical stop"},
			{ID: 3, LogicalStopID: 101, Latitude: 49.4432, Longitude: 1.0941, Name: "Gare B"},
		}})
	}))

	points, err := c.TripPointsNear(context.Background(), 49.443, 1.094)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, int64(1), points[0].ID)
	assert.Equal(t, int64(3), points[1].ID)

	assert.Equal(t, "5", query.Get("PointTypes"))
	assert.InDelta(t, 49.4415, queryFloat(t, query, "MinimumLatitude"), 1e-9)
	assert.InDelta(t, 49.4445, queryFloat(t, query, "MaximumLatitude"), 1e-9)
	assert.InDelta(t, 1.0925, queryFloat(t, query, "MinimumLongitude"), 1e-9)
	assert.InDelta(t, 1.0955, queryFloat(t, query, "MaximumLongitude"), 1e-9)

	// Same rounded coordinate: served from cache.
	_, err = c.TripPointsNear(context.Background(), 49.443, 1.094)
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
}

func TestTripPointsNearStaleOnFailure(t *testing.T) {
	healthy := true
	c, now := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(tripPointResponse{Data: []TripPoint{
			{ID: 1, LogicalStopID: 100, Name: "Gare"},
		}})
	}))

	points, err := c.TripPointsNear(context.Background(), 49.443, 1.094)
	require.NoError(t, err)
	require.Len(t, points, 1)

	// Refresh fails after expiry; the stale set keeps serving.
	healthy = false
	*now = now.Add(tripPointCacheTTL + time.Minute)

	points, err = c.TripPointsNear(context.Background(), 49.443, 1.094)
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestTripPointsNearColdFailure(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.TripPointsNear(context.Background(), 49.443, 1.094)
	assert.Error(t, err)
}

func TestNextDepartures(t *testing.T) {
	var path string
	var query url.Values
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = r.URL.Query()
		json.NewEncoder(w).Encode([]LogicalStopGroup{{
			Lines: []LineEntry{{
				Line:  &Line{Number: "F1"},
				Times: []DepartureTime{{DateTime: "2024-06-03T08:00:00"}},
			}},
		}})
	}))

	payload, err := c.NextDepartures(context.Background(), 100, 49.443, 1.094)
	require.NoError(t, err)

	assert.Equal(t, "/media/api/v1/en/Schedules/LogicalStop/100/NextDeparture", path)
	assert.Equal(t, "true", query.Get("realTime"))
	assert.Equal(t, "TSI_MRN", query.Get("userId"))

	require.Len(t, payload.Groups, 1)
	assert.Equal(t, "F1", payload.Groups[0].Lines[0].Line.Number)
	assert.Contains(t, payload.SourceURL, "/NextDeparture")
}

func TestNextStopHoursClampsParameters(t *testing.T) {
	var query url.Values
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		json.NewEncoder(w).Encode(timetableEnvelope{Data: &TimetableData{}})
	})

	c, _ := testClient(t, handler)

	_, err := c.NextStopHours(context.Background(), 100, 500)
	require.NoError(t, err)
	assert.Equal(t, "100", query.Get("LogicalStopIds"))
	assert.Equal(t, "120", query.Get("MaxItemsByStop"))
	assert.Equal(t, "200", query.Get("MaxTotalItems"))
	assert.Equal(t, "20", query.Get("MaxItemsByLine"))
	assert.Equal(t, "20", query.Get("MaxLines"))
	assert.Equal(t, "2", query.Get("TimeTableType"))

	_, err = c.NextStopHours(context.Background(), 100, 1)
	require.NoError(t, err)
	assert.Equal(t, "5", query.Get("MaxItemsByStop"))
	assert.Equal(t, "20", query.Get("MaxTotalItems"))
	assert.Equal(t, "6", query.Get("MaxItemsByLine"))
}

func TestNextStopHoursEnvelopeError(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(timetableEnvelope{
			StatusCode: 404,
			Message:    "unknown logical stop",
		})
	}))

	_, err := c.NextStopHours(context.Background(), 100, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown logical stop")
}
