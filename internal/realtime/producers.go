package realtime

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/axellelanca/locashare/internal/ai"
)

// Chunk types produced by the built-in producers.
const (
	ChunkAIToken        = "ai_chunk"
	ChunkLocationUpdate = "location_update"
)

// AIProducer streams recommendation text token by token.
func AIProducer(rec ai.Recommender, req StreamRequest) Producer {
	return func(ctx context.Context, emit func(Chunk) error) error {
		return rec.Stream(ctx, ai.Request{
			Query:     req.Query,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
		}, func(tok string) error {
			return emit(Chunk{Type: ChunkAIToken, Content: tok})
		})
	}
}

// LocationUpdate is the payload of a location_update chunk.
type LocationUpdate struct {
	UserID    string    `json:"user_id"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// Centre of the simulated positions (Seoul City Hall).
const (
	simBaseLat = 37.5665
	simBaseLng = 126.9780
)

// SimulatedPosition derives a stable position near the simulation centre
// from the user ID. It stands in for a device feed.
func SimulatedPosition(userID string) (lat, lng float64) {
	h := fnv.New32a()
	h.Write([]byte(userID))
	offset := float64(h.Sum32()%100) / 1000
	return simBaseLat + offset, simBaseLng + offset
}

// LocationProducer emits a location update for userID immediately and then
// every interval until the session ends.
func LocationProducer(userID string, interval time.Duration, now func() time.Time) Producer {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, emit func(Chunk) error) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			lat, lng := SimulatedPosition(userID)
			err := emit(Chunk{
				Type: ChunkLocationUpdate,
				Data: LocationUpdate{UserID: userID, Latitude: lat, Longitude: lng, Timestamp: now()},
			})
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
}
