package parse

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spkg/bom"
	"golang.org/x/text/collate"

	"buswidget.dev/transit/civil"
	"buswidget.dev/transit/model"
)

// Options tweak snapshot assembly. The zero value uses the default
// provider priorities and the current time.
type Options struct {
	FetchedAt        time.Time
	ProviderPriority map[string]int
}

type stopCSV struct {
	ID            string `csv:"stop_id"`
	Code          string `csv:"stop_code"`
	Name          string `csv:"stop_name"`
	Lat           string `csv:"stop_lat"`
	Lon           string `csv:"stop_lon"`
	LocationType  string `csv:"location_type"`
	ParentStation string `csv:"parent_station"`
}

type routeCSV struct {
	ID        string `csv:"route_id"`
	ShortName string `csv:"route_short_name"`
	LongName  string `csv:"route_long_name"`
	Type      string `csv:"route_type"`
	Color     string `csv:"route_color"`
}

type tripCSV struct {
	ID        string `csv:"trip_id"`
	RouteID   string `csv:"route_id"`
	ServiceID string `csv:"service_id"`
	Headsign  string `csv:"trip_headsign"`
}

type stopTimeCSV struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	DepartureTime string `csv:"departure_time"`
	Headsign      string `csv:"stop_headsign"`
}

type calendarCSV struct {
	ServiceID string `csv:"service_id"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
	Monday    string `csv:"monday"`
	Tuesday   string `csv:"tuesday"`
	Wednesday string `csv:"wednesday"`
	Thursday  string `csv:"thursday"`
	Friday    string `csv:"friday"`
	Saturday  string `csv:"saturday"`
	Sunday    string `csv:"sunday"`
}

type calendarDateCSV struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType string `csv:"exception_type"`
}

// unmarshalTable parses one tabular file. The delimiter is detected
// per file from the header line, since feeds mix comma and semicolon
// separated tables. LazyQuotes survives the sloppy quoting some
// agencies produce; the BOM reader strips unicode BOMs.
func unmarshalTable(data []byte, out interface{}) error {
	delimiter := ','
	if header, _, _ := bytes.Cut(data, []byte("\n")); bytes.ContainsRune(header, ';') {
		delimiter = ';'
	}

	r := csv.NewReader(bom.NewReader(bytes.NewReader(data)))
	r.Comma = delimiter
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	return gocsv.UnmarshalCSV(r, out)
}

func optFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func optInt(s string, absent int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return absent
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return absent
	}
	return n
}

// parseDepartureSeconds parses a GTFS HH:MM:SS time of day. Hours may
// exceed 24 for trips running past midnight.
func parseDepartureSeconds(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("found %d parts in %q", len(parts), s)
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	sec, errS := strconv.Atoi(parts[2])
	if errH != nil || errM != nil || errS != nil {
		return 0, fmt.Errorf("non-integer in %q", s)
	}
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("out of range in %q", s)
	}
	return h*3600 + m*60 + sec, nil
}

// ParseStatic turns a zipped static feed into an immutable snapshot.
// stops, routes, trips and stop_times are required; calendar and
// calendar_dates are optional. No partial snapshot is ever returned.
func ParseStatic(buf []byte, opts Options) (*model.Snapshot, error) {
	file := map[string][]byte{
		"stops.txt":          nil,
		"routes.txt":         nil,
		"trips.txt":          nil,
		"stop_times.txt":     nil,
		"calendar.txt":       nil,
		"calendar_dates.txt": nil,
	}

	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	for _, f := range r.File {
		// There should not be any subdirectories. But, some
		// agencies don't care.
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		fName := path[len(path)-1]

		if _, found := file[fName]; !found {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		file[fName] = data
	}

	for _, required := range []string{"stops.txt", "routes.txt", "trips.txt", "stop_times.txt"} {
		if file[required] == nil {
			return nil, fmt.Errorf("missing %s", required)
		}
	}

	fetchedAt := opts.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	snap := &model.Snapshot{
		FetchedAt:        fetchedAt,
		Stops:            map[string]*model.StopInfo{},
		Routes:           map[string]*model.RouteInfo{},
		Trips:            map[string]*model.TripInfo{},
		StopTimesByStop:  map[string][]model.StopTimeInfo{},
		ChildrenByParent: map[string][]string{},
		Calendars:        map[string]model.ServiceCalendar{},
		ExceptionsByDate: map[int]map[string]int8{},
		ColorByLine:      map[string]string{},
	}

	if err := parseStops(file["stops.txt"], snap); err != nil {
		return nil, errors.Wrap(err, "parsing stops.txt")
	}
	if err := parseRoutes(file["routes.txt"], snap); err != nil {
		return nil, errors.Wrap(err, "parsing routes.txt")
	}
	if err := parseTrips(file["trips.txt"], snap); err != nil {
		return nil, errors.Wrap(err, "parsing trips.txt")
	}
	routeIDsByStop, err := parseStopTimes(file["stop_times.txt"], snap)
	if err != nil {
		return nil, errors.Wrap(err, "parsing stop_times.txt")
	}
	if file["calendar.txt"] != nil {
		if err := parseCalendar(file["calendar.txt"], snap); err != nil {
			return nil, errors.Wrap(err, "parsing calendar.txt")
		}
	}
	if file["calendar_dates.txt"] != nil {
		if err := parseCalendarDates(file["calendar_dates.txt"], snap); err != nil {
			return nil, errors.Wrap(err, "parsing calendar_dates.txt")
		}
	}

	buildDerivedStopFields(snap, routeIDsByStop)
	buildLineColors(snap)
	buildSearchIndex(snap, opts.ProviderPriority)

	return snap, nil
}

func parseStops(data []byte, snap *model.Snapshot) error {
	rows := []*stopCSV{}
	if err := unmarshalTable(data, &rows); err != nil {
		return fmt.Errorf("unmarshaling csv: %w", err)
	}

	for _, row := range rows {
		id := strings.TrimSpace(row.ID)
		if id == "" {
			continue
		}

		name := strings.TrimSpace(row.Name)
		if name == "" {
			name = id
		}

		stop := &model.StopInfo{
			ID:              id,
			Name:            name,
			Lat:             optFloat(row.Lat),
			Lon:             optFloat(row.Lon),
			Code:            strings.TrimSpace(row.Code),
			LocationType:    model.LocationType(optInt(row.LocationType, 0)),
			ParentStationID: strings.TrimSpace(row.ParentStation),
			TransportModes:  []string{},
			LineHints:       []string{},
			LineHintColors:  map[string]string{},
		}
		snap.Stops[id] = stop

		if stop.ParentStationID != "" {
			snap.ChildrenByParent[stop.ParentStationID] = append(
				snap.ChildrenByParent[stop.ParentStationID], id)
		}
	}

	return nil
}

func parseRoutes(data []byte, snap *model.Snapshot) error {
	rows := []*routeCSV{}
	if err := unmarshalTable(data, &rows); err != nil {
		return fmt.Errorf("unmarshaling csv: %w", err)
	}

	for _, row := range rows {
		id := strings.TrimSpace(row.ID)
		if id == "" {
			continue
		}

		shortName := strings.TrimSpace(row.ShortName)
		if shortName == "" {
			shortName = id
		}
		longName := strings.TrimSpace(row.LongName)
		if longName == "" {
			longName = shortName
		}

		snap.Routes[id] = &model.RouteInfo{
			ID:        id,
			ShortName: shortName,
			LongName:  longName,
			Type:      optInt(row.Type, -1),
			Color:     model.NormalizeHexColor(row.Color),
		}
	}

	return nil
}

func parseTrips(data []byte, snap *model.Snapshot) error {
	rows := []*tripCSV{}
	if err := unmarshalTable(data, &rows); err != nil {
		return fmt.Errorf("unmarshaling csv: %w", err)
	}

	for _, row := range rows {
		id := strings.TrimSpace(row.ID)
		routeID := strings.TrimSpace(row.RouteID)
		serviceID := strings.TrimSpace(row.ServiceID)
		if id == "" || routeID == "" || serviceID == "" {
			continue
		}

		snap.Trips[id] = &model.TripInfo{
			ID:        id,
			RouteID:   routeID,
			Headsign:  strings.TrimSpace(row.Headsign),
			ServiceID: serviceID,
		}
	}

	return nil
}

// parseStopTimes fills StopTimesByStop and returns the set of route
// IDs serving each stop, used later to derive per-stop fields.
func parseStopTimes(data []byte, snap *model.Snapshot) (map[string]map[string]bool, error) {
	rows := []*stopTimeCSV{}
	if err := unmarshalTable(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling csv: %w", err)
	}

	routeIDsByStop := map[string]map[string]bool{}
	for _, row := range rows {
		tripID := strings.TrimSpace(row.TripID)
		stopID := strings.TrimSpace(row.StopID)
		if tripID == "" || stopID == "" {
			continue
		}

		trip, ok := snap.Trips[tripID]
		if !ok {
			continue
		}

		if routeIDsByStop[stopID] == nil {
			routeIDsByStop[stopID] = map[string]bool{}
		}
		routeIDsByStop[stopID][trip.RouteID] = true

		departureSeconds, err := parseDepartureSeconds(row.DepartureTime)
		if err != nil {
			// A row without a usable departure time still
			// contributes to the stop's route set.
			continue
		}

		snap.StopTimesByStop[stopID] = append(snap.StopTimesByStop[stopID], model.StopTimeInfo{
			TripID:           tripID,
			StopID:           stopID,
			DepartureSeconds: departureSeconds,
			StopHeadsign:     strings.TrimSpace(row.Headsign),
		})
	}

	return routeIDsByStop, nil
}

func parseCalendar(data []byte, snap *model.Snapshot) error {
	rows := []*calendarCSV{}
	if err := unmarshalTable(data, &rows); err != nil {
		return fmt.Errorf("unmarshaling csv: %w", err)
	}

	for _, row := range rows {
		serviceID := strings.TrimSpace(row.ServiceID)
		if serviceID == "" {
			continue
		}

		startDate, errStart := civil.ParseDateKey(strings.TrimSpace(row.StartDate))
		endDate, errEnd := civil.ParseDateKey(strings.TrimSpace(row.EndDate))
		if errStart != nil || errEnd != nil {
			continue
		}

		flag := func(s string) bool { return strings.TrimSpace(s) == "1" }
		snap.Calendars[serviceID] = model.ServiceCalendar{
			StartDate: int(startDate),
			EndDate:   int(endDate),
			Weekdays: [7]bool{
				flag(row.Monday),
				flag(row.Tuesday),
				flag(row.Wednesday),
				flag(row.Thursday),
				flag(row.Friday),
				flag(row.Saturday),
				flag(row.Sunday),
			},
		}
	}

	return nil
}

func parseCalendarDates(data []byte, snap *model.Snapshot) error {
	rows := []*calendarDateCSV{}
	if err := unmarshalTable(data, &rows); err != nil {
		return fmt.Errorf("unmarshaling csv: %w", err)
	}

	for _, row := range rows {
		serviceID := strings.TrimSpace(row.ServiceID)
		dateKey, err := civil.ParseDateKey(strings.TrimSpace(row.Date))
		exceptionType := optInt(row.ExceptionType, 0)
		if serviceID == "" || err != nil {
			continue
		}
		if exceptionType != int(model.ExceptionAdded) && exceptionType != int(model.ExceptionRemoved) {
			continue
		}

		byService := snap.ExceptionsByDate[int(dateKey)]
		if byService == nil {
			byService = map[string]int8{}
			snap.ExceptionsByDate[int(dateKey)] = byService
		}
		byService[serviceID] = int8(exceptionType)
	}

	return nil
}

// effectiveRouteIDs is a stop's own route set, widened with its
// children's routes when the stop is a station.
func effectiveRouteIDs(stop *model.StopInfo, snap *model.Snapshot, routeIDsByStop map[string]map[string]bool) map[string]bool {
	routeIDs := map[string]bool{}
	for id := range routeIDsByStop[stop.ID] {
		routeIDs[id] = true
	}
	if stop.IsStation() {
		for _, childID := range snap.ChildrenByParent[stop.ID] {
			for id := range routeIDsByStop[childID] {
				routeIDs[id] = true
			}
		}
	}
	return routeIDs
}

func buildDerivedStopFields(snap *model.Snapshot, routeIDsByStop map[string]map[string]bool) {
	coll := model.NewCollator()

	for _, stop := range snap.Stops {
		routeIDs := effectiveRouteIDs(stop, snap, routeIDsByStop)

		modeSet := map[string]bool{}
		lineSet := map[string]bool{}
		routes := []*model.RouteInfo{}
		for routeID := range routeIDs {
			route, ok := snap.Routes[routeID]
			if !ok {
				continue
			}
			routes = append(routes, route)
			if mode := model.TransportMode(route); mode != "" {
				modeSet[mode] = true
			}
			if line := strings.TrimSpace(route.ShortName); line != "" {
				lineSet[line] = true
			}
		}

		stop.TransportModes = setToSlice(modeSet)
		model.SortModes(stop.TransportModes)

		stop.LineHints = setToSlice(lineSet)
		sort.Slice(stop.LineHints, func(i, j int) bool {
			return coll.CompareString(stop.LineHints[i], stop.LineHints[j]) < 0
		})

		stop.LineHintColors = lineColorsFor(routes, coll)
	}
}

// lineColorsFor records the first 6-hex-digit color per line, with
// routes visited in (line, route ID) collated order so the choice is
// deterministic.
func lineColorsFor(routes []*model.RouteInfo, coll *collate.Collator) map[string]string {
	sortRoutesByLine(routes, coll)

	colors := map[string]string{}
	for _, route := range routes {
		line := strings.TrimSpace(route.ShortName)
		if line == "" || route.Color == "" {
			continue
		}
		if _, ok := colors[line]; !ok {
			colors[line] = route.Color
		}
	}
	return colors
}

func buildLineColors(snap *model.Snapshot) {
	coll := model.NewCollator()

	routes := make([]*model.RouteInfo, 0, len(snap.Routes))
	for _, route := range snap.Routes {
		routes = append(routes, route)
	}
	sortRoutesByLine(routes, coll)

	for _, route := range routes {
		line := strings.TrimSpace(route.ShortName)
		if line == "" || route.Color == "" {
			continue
		}
		normalized := model.NormalizeLineName(line)
		if _, ok := snap.ColorByLine[normalized]; !ok {
			snap.ColorByLine[normalized] = route.Color
		}
	}
}

func sortRoutesByLine(routes []*model.RouteInfo, coll *collate.Collator) {
	sort.Slice(routes, func(i, j int) bool {
		if cmp := coll.CompareString(routes[i].ShortName, routes[j].ShortName); cmp != 0 {
			return cmp < 0
		}
		return coll.CompareString(routes[i].ID, routes[j].ID) < 0
	})
}

func buildSearchIndex(snap *model.Snapshot, priorities map[string]int) {
	snap.Searchable = make([]model.SearchableStop, 0, len(snap.Stops))
	for _, stop := range snap.Stops {
		snap.Searchable = append(snap.Searchable, model.SearchableStop{
			Stop:             stop,
			NormName:         model.NormalizeForSearch(stop.Name),
			NormID:           model.NormalizeForSearch(stop.ID),
			NormCode:         model.NormalizeForSearch(stop.Code),
			HasKnownService:  len(stop.TransportModes) > 0,
			IsBoardingStop:   !stop.IsStation(),
			ProviderPriority: model.ProviderPriorityOf(stop.ID, priorities),
			LineHintCount:    len(stop.LineHints),
		})
	}
}

func setToSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}
