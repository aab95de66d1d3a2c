package gtfs

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	StopsFile = "stops.txt"
	TripsFile = "trips.txt"
)

// ParseDir parses routes.txt, stops.txt and trips.txt from dir.
// All three files must exist.
func ParseDir(dir string) (*Data, ParseStats, error) {
	var stats ParseStats
	data := &Data{}

	err := parseFile(dir, RoutesFile, func(r io.Reader) error {
		routes, skipped, err := ParseRoutes(r)
		data.Routes, stats.SkippedRoutes = routes, skipped
		return err
	})
	if err != nil {
		return nil, stats, err
	}

	err = parseFile(dir, StopsFile, func(r io.Reader) error {
		stops, skipped, err := ParseStops(r)
		data.Stops, stats.SkippedStops = stops, skipped
		return err
	})
	if err != nil {
		return nil, stats, err
	}

	err = parseFile(dir, TripsFile, func(r io.Reader) error {
		trips, skipped, err := ParseTrips(r)
		data.Trips, stats.SkippedTrips = trips, skipped
		return err
	})
	if err != nil {
		return nil, stats, err
	}

	return data, stats, nil
}

func parseFile(dir, name string, parse func(io.Reader) error) error {
	f, err := os.Open(filepath.Join(dir, name))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrMissingFile, name)
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := parse(f); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// ParseRoutes reads routes.txt rows. Rows without a route_id are skipped and
// counted.
func ParseRoutes(r io.Reader) ([]Route, int, error) {
	var routes []Route
	skipped, err := readRows(r, "route_id", func(id string, row row) {
		routes = append(routes, Route{
			RouteID:        id,
			RouteShortName: row.optional("route_short_name"),
			RouteLongName:  row.optional("route_long_name"),
			RouteType:      row.optionalInt("route_type"),
		})
	})
	return routes, skipped, err
}

// ParseStops reads stops.txt rows. Rows without a stop_id are skipped and
// counted.
func ParseStops(r io.Reader) ([]Stop, int, error) {
	var stops []Stop
	skipped, err := readRows(r, "stop_id", func(id string, row row) {
		stops = append(stops, Stop{
			StopID:   id,
			StopName: row.optional("stop_name"),
			StopLat:  row.optionalFloat("stop_lat"),
			StopLon:  row.optionalFloat("stop_lon"),
		})
	})
	return stops, skipped, err
}

// ParseTrips reads trips.txt rows. Rows without a trip_id are skipped and
// counted.
func ParseTrips(r io.Reader) ([]Trip, int, error) {
	var trips []Trip
	skipped, err := readRows(r, "trip_id", func(id string, row row) {
		trips = append(trips, Trip{
			TripID:       id,
			RouteID:      row.optional("route_id"),
			TripHeadsign: row.optional("trip_headsign"),
			DirectionID:  row.optionalInt("direction_id"),
		})
	})
	return trips, skipped, err
}

// row is one data record with its header index
type row struct {
	record []string
	idx    map[string]int
}

func (r row) optional(field string) *string {
	v := getField(r.record, r.idx, field)
	if v == "" {
		return nil
	}
	return &v
}

func (r row) optionalInt(field string) *int {
	v, err := strconv.Atoi(getField(r.record, r.idx, field))
	if err != nil {
		return nil
	}
	return &v
}

func (r row) optionalFloat(field string) *float64 {
	v, err := strconv.ParseFloat(getField(r.record, r.idx, field), 64)
	if err != nil {
		return nil
	}
	return &v
}

// maxLineBytes bounds a single line of a reference file
const maxLineBytes = 1 << 20

// readRows reads the header, then calls build for every row whose idField is
// present and non-empty. It returns the number of rows skipped.
//
// Each line is parsed on its own, so a stray quote only costs its own row.
func readRows(r io.Reader, idField string, build func(id string, row row)) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var idx map[string]int
	skipped := 0

	for scanner.Scan() {
		record, err := parseLine(scanner.Text())
		if idx == nil {
			if err != nil {
				return 0, fmt.Errorf("failed to read header: %w", err)
			}
			if record == nil {
				continue
			}
			idx = makeIndex(record)
			continue
		}

		if err != nil {
			skipped++
			continue
		}
		if record == nil || isBlank(record) {
			continue
		}

		id := getField(record, idx, idField)
		if id == "" {
			skipped++
			continue
		}
		build(id, row{record: record, idx: idx})
	}
	if err := scanner.Err(); err != nil {
		return skipped, err
	}

	return skipped, nil
}

// parseLine splits one line into fields. An empty line yields nil.
func parseLine(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1

	record, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	return record, err
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
