// Package activity tracks recently-active members per organization in Redis.
//
// Each organization gets a sorted set keyed by member ID with the last-seen
// unix timestamp as score. Counting active members prunes entries older than
// the window first, so the sets stay bounded by the live membership.
package activity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Tracker records and counts member activity
type Tracker struct {
	client *redis.Client
}

// NewTracker creates a redis-backed activity tracker
func NewTracker(client *redis.Client) *Tracker {
	return &Tracker{client: client}
}

func key(orgID int64) string {
	return fmt.Sprintf("activity:org:%d", orgID)
}

// Touch records that a member of the organization was active now
func (t *Tracker) Touch(ctx context.Context, orgID, userID int64) error {
	err := t.client.ZAdd(ctx, key(orgID), &redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: strconv.FormatInt(userID, 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// CountActive returns how many distinct members were active within the
// window, pruning stale entries as a side effect.
func (t *Tracker) CountActive(ctx context.Context, orgID int64, window time.Duration) (int64, error) {
	k := key(orgID)
	cutoff := time.Now().Add(-window).Unix()

	if err := t.client.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return 0, fmt.Errorf("failed to prune activity set: %w", err)
	}

	count, err := t.client.ZCard(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count active members: %w", err)
	}
	return count, nil
}

// Forget drops all activity state for an organization. Used when an
// organization is deprovisioned.
func (t *Tracker) Forget(ctx context.Context, orgID int64) error {
	if err := t.client.Del(ctx, key(orgID)).Err(); err != nil {
		return fmt.Errorf("failed to drop activity set: %w", err)
	}
	return nil
}
