package realtime

import (
	"fmt"
	"strconv"
)

// Mode selects which entity kind a feed is decoded into
type Mode string

const (
	ModeTripUpdates      Mode = "trip-updates"
	ModeVehiclePositions Mode = "vehicle-positions"
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTripUpdates, ModeVehiclePositions:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown feed mode %q", s)
}

// Feed is one polled endpoint
type Feed struct {
	Name string
	URL  string
	Mode Mode
}

// ScheduleRelationshipMap maps the GTFS-RT TripDescriptor ScheduleRelationship enum to its tag
var ScheduleRelationshipMap = map[int32]string{
	0: "SCHEDULED",
	1: "ADDED",
	2: "UNSCHEDULED",
	3: "CANCELED",
	5: "REPLACEMENT",
	6: "DUPLICATED",
	7: "DELETED",
	8: "NEW",
}

// IncrementalityMap maps the GTFS-RT FeedHeader Incrementality enum to its tag
var IncrementalityMap = map[int32]string{
	0: "FULL_DATASET",
	1: "DIFFERENTIAL",
}

func enumTag(m map[int32]string, v int32) string {
	if tag, ok := m[v]; ok {
		return tag
	}
	return strconv.Itoa(int(v))
}
