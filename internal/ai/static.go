package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/axellelanca/locashare/internal/geo"
	"github.com/axellelanca/locashare/internal/models"
	"github.com/axellelanca/locashare/internal/services"
)

// NearbyFinder is the part of the location service the template uses.
type NearbyFinder interface {
	FindNearby(ctx context.Context, q services.NearbyQuery) ([]models.NearbyLocation, error)
}

// StaticRecommender builds an answer from stored locations near the request,
// without any external model. It is the default when no API key is set.
type StaticRecommender struct {
	Places     NearbyFinder // optional
	RadiusKm   float64
	MaxPlaces  int
	TokenDelay time.Duration // pause between streamed words
}

func (s StaticRecommender) Recommend(ctx context.Context, req Request) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Here are some ideas for %q.", strings.TrimSpace(req.Query))

	places := s.nearby(ctx, req)
	if len(places) == 0 {
		b.WriteString(" I could not find saved places close to you, so try widening your search or exploring the neighbourhood on foot.")
		return b.String(), nil
	}
	b.WriteString(" Nearby you can visit:")
	for i, p := range places {
		fmt.Fprintf(&b, " %d. %s (%s, %.1f km away)", i+1, p.Name, p.Category, p.DistanceKm)
		if p.Rating > 0 {
			fmt.Fprintf(&b, " rated %.1f", p.Rating)
		}
		b.WriteString(".")
	}
	return b.String(), nil
}

// Stream emits the Recommend answer word by word.
func (s StaticRecommender) Stream(ctx context.Context, req Request, onToken func(string) error) error {
	text, err := s.Recommend(ctx, req)
	if err != nil {
		return err
	}
	words := strings.Fields(text)
	for i, w := range words {
		if i > 0 && s.TokenDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.TokenDelay):
			}
		}
		if i < len(words)-1 {
			w += " "
		}
		if err := onToken(w); err != nil {
			return err
		}
	}
	return nil
}

func (s StaticRecommender) nearby(ctx context.Context, req Request) []models.NearbyLocation {
	if s.Places == nil || !req.HasLocation() {
		return nil
	}
	radius := s.RadiusKm
	if radius <= 0 {
		radius = 2
	}
	limit := s.MaxPlaces
	if limit <= 0 {
		limit = 5
	}
	places, err := s.Places.FindNearby(ctx, services.NearbyQuery{
		Center:   geo.Point{Lat: *req.Latitude, Lng: *req.Longitude},
		RadiusKm: radius,
		Limit:    limit,
	})
	if err != nil {
		return nil
	}
	return places
}
