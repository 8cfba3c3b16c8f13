package analytics

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// DefaultSegmentEndpoint is Segment's HTTP tracking API.
const DefaultSegmentEndpoint = "https://api.segment.io"

// SegmentSink posts events to the Segment HTTP tracking API.
type SegmentSink struct {
	client     *resty.Client
	appVersion string
}

// NewSegmentSink creates a sink authenticated with writeKey. An empty
// endpoint uses DefaultSegmentEndpoint.
func NewSegmentSink(endpoint, writeKey, appVersion string) *SegmentSink {
	if endpoint == "" {
		endpoint = DefaultSegmentEndpoint
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(endpoint, "/")).
		SetHeader("Content-Type", "application/json").
		SetBasicAuth(writeKey, "")
	return &SegmentSink{client: client, appVersion: appVersion}
}

type segmentTrack struct {
	UserID     string         `json:"userId"`
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties"`
	Context    map[string]any `json:"context"`
	Timestamp  string         `json:"timestamp"`
}

func (s *SegmentSink) Track(ctx context.Context, e Event) error {
	body := segmentTrack{
		UserID:     e.UserID,
		Event:      e.Event,
		Properties: e.Properties,
		Context: map[string]any{
			"app": map[string]any{"name": Platform, "version": s.appVersion},
		},
		Timestamp: e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	}

	resp, err := s.client.R().SetContext(ctx).SetBody(body).Post("/v1/track")
	if err != nil {
		return fmt.Errorf("segment track: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("segment track: status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}
