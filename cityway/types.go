package cityway

import (
	"bytes"
	"strconv"
)

// LongLike is a numeric field that the provider serializes either as
// a JSON number or as a numeric string. Decodes to 0 on anything
// else.
type LongLike int64

func (l *LongLike) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	if s == "" || s == "null" {
		*l = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*l = 0
		return nil
	}
	*l = LongLike(f)
	return nil
}

// FloatLike is the fractional counterpart of LongLike.
type FloatLike float64

func (f *FloatLike) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = FloatLike(v)
	return nil
}

// A physical boarding point in the provider's spatial stop graph.
type TripPoint struct {
	ID            int64   `json:"Id"`
	LogicalStopID int64   `json:"LogicalStopId"`
	Latitude      float64 `json:"Latitude"`
	Longitude     float64 `json:"Longitude"`
	Name          string  `json:"Name"`
}

type tripPointResponse struct {
	Data       []TripPoint `json:"Data"`
	StatusCode int         `json:"StatusCode"`
	Message    string      `json:"Message"`
}

// Next-departure payload (media API, camelCase).

type Line struct {
	ID     LongLike `json:"id"`
	Number string   `json:"number"`
	Name   string   `json:"name"`
	Color  string   `json:"color"`
}

type Direction struct {
	ID   LongLike `json:"id"`
	Name string   `json:"name"`
}

type StopRef struct {
	ID   *LongLike `json:"id"`
	Code string    `json:"code"`
	Name string    `json:"name"`
}

type TimeDestination struct {
	Name string `json:"name"`
}

type DepartureTime struct {
	DateTime     string           `json:"dateTime"`
	RealDateTime string           `json:"realDateTime"`
	Destination  *TimeDestination `json:"destination"`
}

type LineEntry struct {
	Line      *Line           `json:"line"`
	Direction *Direction      `json:"direction"`
	Stop      *StopRef        `json:"stop"`
	Times     []DepartureTime `json:"times"`
}

type LogicalStopGroup struct {
	Lines []LineEntry `json:"lines"`
}

type NextDeparturesPayload struct {
	Groups    []LogicalStopGroup
	SourceURL string
}

// Timetable payload (transport/v3 API, PascalCase).

type TimetableHour struct {
	LineID               LongLike  `json:"LineId"`
	StopID               *LongLike `json:"StopId"`
	VehicleJourneyID     LongLike  `json:"VehicleJourneyId"`
	TheoricDepartureTime *LongLike `json:"TheoricDepartureTime"`
	AimedDepartureTime   *LongLike `json:"AimedDepartureTime"`
	PredictedDeparture   *LongLike `json:"PredictedDepartureTime"`
	RealDepartureTime    *LongLike `json:"RealDepartureTime"`
	RealTimeStatus       LongLike  `json:"RealTimeStatus"`
	IsCancelled          bool      `json:"IsCancelled"`
}

type TimetableLine struct {
	ID     LongLike `json:"Id"`
	Number string   `json:"Number"`
	Name   string   `json:"Name"`
	Color  string   `json:"Color"`
}

type TimetableStop struct {
	ID        LongLike  `json:"Id"`
	LogicalID LongLike  `json:"LogicalId"`
	Name      string    `json:"Name"`
	Code      string    `json:"Code"`
	Latitude  FloatLike `json:"Latitude"`
	Longitude FloatLike `json:"Longitude"`
}

type TimetableVehicleJourney struct {
	ID                 LongLike `json:"Id"`
	JourneyDestination string   `json:"JourneyDestination"`
}

type TimetableData struct {
	Hours           []TimetableHour           `json:"Hours"`
	Lines           []TimetableLine           `json:"Lines"`
	Stops           []TimetableStop           `json:"Stops"`
	VehicleJourneys []TimetableVehicleJourney `json:"VehicleJourneys"`
	ServerTime      string                    `json:"ServerTime"`
}

type timetableEnvelope struct {
	Data       *TimetableData `json:"Data"`
	StatusCode int            `json:"StatusCode"`
	Message    string         `json:"Message"`
}

type TimetablePayload struct {
	Data      *TimetableData
	SourceURL string
}
