// Package ai produces location-aware recommendation text. The text source is
// either an OpenAI-compatible chat completion API or a local template.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Request is a recommendation query with optional coordinates.
type Request struct {
	Query     string
	Latitude  *float64
	Longitude *float64
}

// HasLocation reports whether both coordinates are set.
func (r Request) HasLocation() bool { return r.Latitude != nil && r.Longitude != nil }

// Recommender turns a query into recommendation text.
type Recommender interface {
	Recommend(ctx context.Context, req Request) (string, error)
	// Stream calls onToken with successive fragments of the answer and
	// stops at the first error returned by onToken.
	Stream(ctx context.Context, req Request, onToken func(token string) error) error
}

// Fallback uses Secondary whenever Primary fails before producing output.
type Fallback struct {
	Primary   Recommender
	Secondary Recommender
	Logger    *slog.Logger
}

func (f Fallback) Recommend(ctx context.Context, req Request) (string, error) {
	text, err := f.Primary.Recommend(ctx, req)
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	f.Logger.WarnContext(ctx, "primary recommender failed, using fallback", slog.Any("error", err))
	return f.Secondary.Recommend(ctx, req)
}

func (f Fallback) Stream(ctx context.Context, req Request, onToken func(string) error) error {
	started := false
	err := f.Primary.Stream(ctx, req, func(tok string) error {
		started = true
		return onToken(tok)
	})
	if err == nil || started || ctx.Err() != nil {
		return err
	}
	f.Logger.WarnContext(ctx, "primary recommender stream failed, using fallback", slog.Any("error", err))
	return f.Secondary.Stream(ctx, req, onToken)
}

func buildPrompt(req Request) string {
	var b strings.Builder
	if req.HasLocation() {
		fmt.Fprintf(&b, "Current location: latitude %.6f, longitude %.6f\n", *req.Latitude, *req.Longitude)
	}
	fmt.Fprintf(&b, "User request: %s\n\n", req.Query)
	b.WriteString("Recommend relevant places near this location. ")
	b.WriteString("For each one give its name, a short description and why it fits the request.")
	return b.String()
}
