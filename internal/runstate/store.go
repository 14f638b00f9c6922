// Package runstate keeps each campaign's live pacing counters in Redis.
// Counter keys embed the campaign-local day and hour bucket labels and carry
// TTLs, so a counter can never outlive its bucket; rollover is a new key,
// not a reset. Reservations run as a single Lua script so the limit check
// and the increment cannot be separated by another worker's decision.
package runstate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/pacing"
)

// Limits are the campaign-wide pacing bounds enforced at reservation time.
type Limits struct {
	DailyLimit  int
	HourlyLimit int // 0 means unlimited
	MinInterval time.Duration
}

// Store reads and reserves campaign run-state.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore constructs a run-state store.
func NewStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "dialer:pace"
	}
	return &Store{client: client, prefix: prefix}
}

var reserveScript = redis.NewScript(`
local day = KEYS[1]
local hour = KEYS[2]
local last = KEYS[3]
local dailyLimit = tonumber(ARGV[1])
local hourlyLimit = tonumber(ARGV[2])
local minIntervalMs = tonumber(ARGV[3])
local nowMs = tonumber(ARGV[4])
local dayTTLms = tonumber(ARGV[5])
local hourTTLms = tonumber(ARGV[6])

local callsToday = tonumber(redis.call('GET', day) or '0')
if callsToday >= dailyLimit then
  return 0
end
if hourlyLimit > 0 then
  local callsThisHour = tonumber(redis.call('GET', hour) or '0')
  if callsThisHour >= hourlyLimit then
    return 0
  end
end
if minIntervalMs > 0 then
  local lastMs = tonumber(redis.call('GET', last) or '0')
  if lastMs > 0 and nowMs - lastMs < minIntervalMs then
    return 0
  end
end

redis.call('INCR', day)
redis.call('PEXPIRE', day, dayTTLms)
redis.call('INCR', hour)
redis.call('PEXPIRE', hour, hourTTLms)
redis.call('SET', last, nowMs)
return 1
`)

var releaseScript = redis.NewScript(`
for i = 1, 2 do
  local current = tonumber(redis.call('GET', KEYS[i]) or '0')
  if current > 0 then
    redis.call('DECR', KEYS[i])
  end
end
return 1
`)

// Reserve atomically claims one attempt slot for the campaign. It re-checks
// the daily limit, hourly limit and minimum call interval against the live
// counters and only then advances them, closing the check-then-act window
// between a policy decision and the dispatch. A false return is an ordinary
// pacing deferral: the caller should re-run the policy against a fresh
// snapshot for the retry time.
func (s *Store) Reserve(ctx context.Context, campaignID uuid.UUID, limits Limits, now time.Time, loc *time.Location) (bool, error) {
	keys := []string{
		s.dayKey(campaignID, now, loc),
		s.hourKey(campaignID, now, loc),
		s.lastKey(campaignID),
	}
	res, err := reserveScript.Run(ctx, s.client, keys,
		limits.DailyLimit,
		limits.HourlyLimit,
		limits.MinInterval.Milliseconds(),
		now.UnixMilli(),
		(48 * time.Hour).Milliseconds(),
		(2 * time.Hour).Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("runstate: reserve: %w", err)
	}
	return res == 1, nil
}

// Release returns a slot reserved for a dispatch that never left the
// process, e.g. when the Kafka write failed. lastCallAt is left as-is; a
// failed dispatch still consumed the pacing gap.
func (s *Store) Release(ctx context.Context, campaignID uuid.UUID, now time.Time, loc *time.Location) error {
	keys := []string{
		s.dayKey(campaignID, now, loc),
		s.hourKey(campaignID, now, loc),
	}
	if err := releaseScript.Run(ctx, s.client, keys).Err(); err != nil {
		return fmt.Errorf("runstate: release: %w", err)
	}
	return nil
}

// Snapshot reads the counters for the buckets containing now. The snapshot
// is advisory; Reserve re-validates before committing capacity.
func (s *Store) Snapshot(ctx context.Context, campaignID uuid.UUID, now time.Time, loc *time.Location) (domain.RunState, error) {
	pipe := s.client.Pipeline()
	dayCmd := pipe.Get(ctx, s.dayKey(campaignID, now, loc))
	hourCmd := pipe.Get(ctx, s.hourKey(campaignID, now, loc))
	lastCmd := pipe.Get(ctx, s.lastKey(campaignID))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.RunState{}, fmt.Errorf("runstate: snapshot: %w", err)
	}

	var run domain.RunState
	run.CallsToday = intResult(dayCmd)
	run.CallsThisHour = intResult(hourCmd)
	if ms := int64Result(lastCmd); ms > 0 {
		t := time.UnixMilli(ms).UTC()
		run.LastCallAt = &t
	}
	return run, nil
}

func intResult(cmd *redis.StringCmd) int {
	v, err := cmd.Result()
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(v)
	return n
}

func int64Result(cmd *redis.StringCmd) int64 {
	v, err := cmd.Result()
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

func (s *Store) dayKey(campaignID uuid.UUID, now time.Time, loc *time.Location) string {
	return fmt.Sprintf("%s:%s:d:%s", s.prefix, campaignID, pacing.DayBucket(now, loc))
}

func (s *Store) hourKey(campaignID uuid.UUID, now time.Time, loc *time.Location) string {
	return fmt.Sprintf("%s:%s:h:%s", s.prefix, campaignID, pacing.HourBucket(now, loc))
}

func (s *Store) lastKey(campaignID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:last", s.prefix, campaignID)
}
