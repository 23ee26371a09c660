package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

const (
	statsKeyPrefix      = "checkin:stats:"
	statsGenerationKey  = "checkin:statsgen:"
	liveChannelPrefix   = "checkin:live:"
	generationRetention = 24 * time.Hour
)

// setStatsIfCurrent writes KEYS[2] only while the generation in KEYS[1]
// still equals ARGV[1]. ARGV[3] is the TTL in milliseconds, 0 for none.
var setStatsIfCurrent = redis.NewScript(`
local current = redis.call("GET", KEYS[1]) or "0"
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)

// Redis holds the stats display cache and the live attendance channel.
// Nothing stored here is ever consulted for an admission decision.
type Redis struct {
	Client   *redis.Client
	StatsTTL time.Duration
	Logger   *logger.Logger
}

func NewRedis(client *redis.Client, statsTTL time.Duration, log *logger.Logger) *Redis {
	return &Redis{
		Client:   client,
		StatsTTL: statsTTL,
		Logger:   log,
	}
}

// Connect creates a client and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password
		DB:       0,  // use default DB
		PoolSize: 10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

func statsKey(eventID string) string {
	return statsKeyPrefix + eventID
}

func generationKey(eventID string) string {
	return statsGenerationKey + eventID
}

func liveChannel(eventID string) string {
	return liveChannelPrefix + eventID
}

// GetStats returns the cached stats of an event. A miss is (nil, false, nil).
func (r *Redis) GetStats(ctx context.Context, eventID string) (*models.AttendanceStats, bool, error) {
	raw, err := r.Client.Get(ctx, statsKey(eventID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var stats models.AttendanceStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		// Corrupt entry: drop it and report a miss.
		r.Client.Del(ctx, statsKey(eventID))
		return nil, false, nil
	}
	return &stats, true, nil
}

// StatsGeneration returns the invalidation counter of an event, 0 when it
// was never invalidated.
func (r *Redis) StatsGeneration(ctx context.Context, eventID string) (int64, error) {
	gen, err := r.Client.Get(ctx, generationKey(eventID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// SetStats caches stats built after reading generation. The write is
// dropped when an invalidation happened in between.
func (r *Redis) SetStats(ctx context.Context, stats *models.AttendanceStats, generation int64) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}

	stored, err := setStatsIfCurrent.Run(ctx, r.Client,
		[]string{generationKey(stats.EventID), statsKey(stats.EventID)},
		strconv.FormatInt(generation, 10), raw, r.StatsTTL.Milliseconds(),
	).Int()
	if err != nil {
		return err
	}
	if stored == 0 {
		r.Logger.Debug("CACHE", fmt.Sprintf("Skipped stale stats for event %s", stats.EventID))
	}
	return nil
}

// InvalidateStats bumps the generation and drops the cached copy.
func (r *Redis) InvalidateStats(ctx context.Context, eventID string) error {
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(eventID))
		pipe.Expire(ctx, generationKey(eventID), generationRetention)
		pipe.Del(ctx, statsKey(eventID))
		return nil
	})
	return err
}

// PublishAttendance fans an attendance event out to every instance
// subscribed through Relay.
func (r *Redis) PublishAttendance(ctx context.Context, event models.AttendanceEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.Client.Publish(ctx, liveChannel(event.EventID), raw).Err()
}

// Relay forwards every published attendance event to handle until ctx is
// done. ready, when non-nil, is closed once the subscription is active.
func (r *Redis) Relay(ctx context.Context, handle func(models.AttendanceEvent), ready chan<- struct{}) error {
	pubsub := r.Client.PSubscribe(ctx, liveChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to live channel: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	r.Logger.Info("REDIS", "Relaying live attendance events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event models.AttendanceEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.Logger.Warn("REDIS", fmt.Sprintf("Dropping malformed live message on %s: %v", msg.Channel, err))
				continue
			}
			if event.EventID == "" {
				event.EventID = strings.TrimPrefix(msg.Channel, liveChannelPrefix)
			}
			handle(event)
		}
	}
}
