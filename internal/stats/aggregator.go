package stats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"checkin-system/models"

	"github.com/redis/go-redis/v9"
)

// recordScript bumps the per-outcome counter, the total and the
// last-scan timestamp in one atomic step, so concurrent devices never
// lose an increment.
const recordScript = `
redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
redis.call('HINCRBY', KEYS[1], 'total', 1)
redis.call('HSET', KEYS[1], 'last_scan_unix', ARGV[2])
return redis.call('HGET', KEYS[1], 'total')
`

// Aggregator is the read-side attendance projection. It consumes
// coordinator outcomes and answers "how many people are in" without
// touching the ledger. It is eventually consistent with the write path
// and holds no authority over ticket status.
type Aggregator struct {
	Redis *redis.Client

	now func() time.Time
}

func NewAggregator(redisClient *redis.Client) *Aggregator {
	return &Aggregator{
		Redis: redisClient,
		now:   time.Now,
	}
}

func statsKey(eventID string) string {
	return fmt.Sprintf("checkin:stats:%s", eventID)
}

// Record folds one outcome into the event's counters.
func (a *Aggregator) Record(ctx context.Context, eventID string, outcome models.Outcome) error {
	return a.Redis.Eval(ctx, recordScript,
		[]string{statsKey(eventID)},
		string(outcome), a.now().Unix(),
	).Err()
}

// Summary returns the full counter hash for an event. Unknown events
// yield zeroed stats, not an error.
func (a *Aggregator) Summary(ctx context.Context, eventID string) (*models.EventStats, error) {
	fields, err := a.Redis.HGetAll(ctx, statsKey(eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("stats summary for %s: %w", eventID, err)
	}

	stats := &models.EventStats{
		EventID:   eventID,
		ByOutcome: make(map[models.Outcome]int64, len(models.Outcomes)),
	}
	for _, outcome := range models.Outcomes {
		stats.ByOutcome[outcome] = 0
	}

	for field, value := range fields {
		switch field {
		case "total":
			stats.Total, _ = strconv.ParseInt(value, 10, 64)
		case "last_scan_unix":
			if unix, err := strconv.ParseInt(value, 10, 64); err == nil && unix > 0 {
				t := time.Unix(unix, 0).UTC()
				stats.LastScanAt = &t
			}
		default:
			outcome := models.Outcome(field)
			if !outcome.Known() {
				// Stray hash fields never fabricate outcome variants
				continue
			}
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				stats.ByOutcome[outcome] = n
			}
		}
	}
	return stats, nil
}

// Attendance is the accepted-scan count for an event.
func (a *Aggregator) Attendance(ctx context.Context, eventID string) (int64, error) {
	value, err := a.Redis.HGet(ctx, statsKey(eventID), string(models.Accepted)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("attendance for %s: %w", eventID, err)
	}
	return strconv.ParseInt(value, 10, 64)
}
