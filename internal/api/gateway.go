package api

import (
	"context"
	"fmt"
)

// GetGateway returns the gateway URL. No authentication is sent.
func (c *Client) GetGateway(ctx context.Context) (*Gateway, error) {
	var resp Gateway
	if err := c.get(ctx, "/gateway", false, &resp); err != nil {
		return nil, fmt.Errorf("get gateway: %w", err)
	}
	return &resp, nil
}

// GetGatewayBot returns the gateway URL, the recommended shard count and
// the session start limit.
func (c *Client) GetGatewayBot(ctx context.Context) (*GatewayBot, error) {
	var resp GatewayBot
	if err := c.get(ctx, "/gateway/bot", true, &resp); err != nil {
		return nil, fmt.Errorf("get gateway bot: %w", err)
	}

	if resp.URL == "" {
		return nil, fmt.Errorf("get gateway bot: empty url")
	}
	if resp.Shards < 1 {
		resp.Shards = 1
	}

	c.logger.Debug("gateway discovered",
		"url", resp.URL,
		"shards", resp.Shards,
		"remaining", resp.SessionStartLimit.Remaining,
		"max_concurrency", resp.SessionStartLimit.MaxConcurrency,
	)

	return &resp, nil
}

// CheckSessionStartLimit returns ErrSessionStartLimitExhausted when no
// session starts remain.
func (g *GatewayBot) CheckSessionStartLimit() error {
	if g.SessionStartLimit.Remaining <= 0 {
		return fmt.Errorf("%w: resets in %s", ErrSessionStartLimitExhausted, g.SessionStartLimit.ResetIn())
	}
	return nil
}
