package track

import (
	"context"

	"vidtrack/internal/upstream"
)

// clientUpstream adapts *upstream.Client to the Upstream seam so tests can
// substitute fakes.
type clientUpstream struct {
	client *upstream.Client
}

// NewUpstream wraps the concrete generation-service client.
func NewUpstream(c *upstream.Client) Upstream {
	return clientUpstream{client: c}
}

func (u clientUpstream) OpenEvents(ctx context.Context, taskID string) (Stream, error) {
	ch, err := u.client.OpenEvents(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (u clientUpstream) TaskStatus(ctx context.Context, taskID string) (upstream.Status, error) {
	return u.client.TaskStatus(ctx, taskID)
}
