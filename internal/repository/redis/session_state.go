package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns for Redis session state.
func snapshotKey(sessionID string) string { return "session:" + sessionID + ":snapshot" }
func readyKey(sessionID string) string    { return "session:" + sessionID + ":ready" }
func timerKey(sessionID string) string    { return "session:" + sessionID + ":turn-timer" }

// SetSnapshot stores the live session snapshot JSON.
func (c *Client) SetSnapshot(ctx context.Context, sessionID string, snapshot json.RawMessage) error {
	return c.rdb.Set(ctx, snapshotKey(sessionID), []byte(snapshot), 0).Err()
}

// GetSnapshot retrieves the live session snapshot JSON.
func (c *Client) GetSnapshot(ctx context.Context, sessionID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session snapshot: %w", err)
	}
	return json.RawMessage(data), nil
}

// MarkReady adds a player to the ready set for the session.
func (c *Client) MarkReady(ctx context.Context, sessionID, playerID string) error {
	return c.rdb.SAdd(ctx, readyKey(sessionID), playerID).Err()
}

// UnmarkReady removes a player from the ready set.
func (c *Client) UnmarkReady(ctx context.Context, sessionID, playerID string) error {
	return c.rdb.SRem(ctx, readyKey(sessionID), playerID).Err()
}

// ReadyCount returns how many players have marked ready.
func (c *Client) ReadyCount(ctx context.Context, sessionID string) (int64, error) {
	return c.rdb.SCard(ctx, readyKey(sessionID)).Result()
}

// ReadyPlayers returns the set of players that have marked ready.
func (c *Client) ReadyPlayers(ctx context.Context, sessionID string) ([]string, error) {
	return c.rdb.SMembers(ctx, readyKey(sessionID)).Result()
}

// ClearReady empties the ready set, after readiness has been consumed or
// the director aborted the session back to preparation.
func (c *Client) ClearReady(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, readyKey(sessionID)).Err()
}

// turnGracePeriod is the extra time after the displayed deadline before
// turn expiry triggers, giving players a few seconds of leeway.
const turnGracePeriod = 5 * time.Second

// SetTurnTimer creates a timer key with a TTL. When the key expires,
// Redis keyspace notifications trigger turn advancement.
// The TTL includes a grace period so the key expires slightly after the
// displayed deadline.
func (c *Client) SetTurnTimer(ctx context.Context, sessionID string, deadline time.Time) error {
	ttl := time.Until(deadline) + turnGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, timerKey(sessionID), deadline.Unix(), ttl).Err()
}

// ClearTurnTimer removes the timer for a session.
func (c *Client) ClearTurnTimer(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, timerKey(sessionID)).Err()
}

// DeleteSessionData removes all Redis data for a session (on session end).
func (c *Client) DeleteSessionData(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, snapshotKey(sessionID), readyKey(sessionID), timerKey(sessionID)).Err()
}
