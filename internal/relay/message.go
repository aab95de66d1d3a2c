// Package relay moves decoded trip-update batches through Kafka: the
// producer publishes each batch to a topic and the consumer installs
// received batches into the snapshot repository.
package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/transit-tracker/ingest/internal/model"
)

// TripUpdateMessage is the wire form of one trip-update batch
type TripUpdateMessage struct {
	ID        string       `json:"id"`
	Trips     []model.Trip `json:"trips"`
	Timestamp int64        `json:"timestamp"`
}

// Store is the snapshot side of the relay
type Store interface {
	UpdateTrips(trips []model.Trip)
	UpdateVehiclePositions(positions []model.VehiclePosition)
}

func encodeMessage(id string, trips []model.Trip, at time.Time) ([]byte, error) {
	if trips == nil {
		trips = []model.Trip{}
	}
	payload, err := json.Marshal(TripUpdateMessage{
		ID:        id,
		Trips:     trips,
		Timestamp: at.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}
	return payload, nil
}

func decodeMessage(payload []byte) (*TripUpdateMessage, error) {
	var msg TripUpdateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %w", err)
	}
	return &msg, nil
}
