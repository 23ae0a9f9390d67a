package session

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosight/slidetrack/internal/model"
	"github.com/gosight/slidetrack/internal/storage"
)

const (
	keyPrefix  = "delivery:"
	sessionTTL = 24 * time.Hour
)

// DeliveryWriter persists a finished delivery summary
type DeliveryWriter interface {
	UpsertDelivery(ctx context.Context, row storage.DeliveryRow) error
}

// recordScript counts one delivery and flags it out of order when it carries
// fewer events than a snapshot already seen for the session
var recordScript = redis.NewScript(`
local key = KEYS[1]
local events = tonumber(ARGV[1])
local maxEvents = tonumber(redis.call('HGET', key, 'max_events') or '-1')
local outOfOrder = 0
if events < maxEvents then
	outOfOrder = 1
	redis.call('HINCRBY', key, 'out_of_order', 1)
else
	redis.call('HSET', key, 'max_events', events)
end
redis.call('HINCRBY', key, 'deliveries', 1)
redis.call('HSETNX', key, 'first_received_at', ARGV[2])
redis.call('HSET', key, 'last_received_at', ARGV[2])
redis.call('HSETNX', key, 'customer_id', ARGV[3])
redis.call('HSET', key, 'transport', ARGV[4])
if ARGV[5] ~= '' then
	redis.call('HSET', key, 'ended_at', ARGV[5])
end
redis.call('PEXPIRE', key, ARGV[6])
return outOfOrder
`)

// Aggregator tracks snapshot deliveries per session in Redis
type Aggregator struct {
	ch    DeliveryWriter
	redis *redis.Client
}

func NewAggregator(ch DeliveryWriter, rdb *redis.Client) *Aggregator {
	return &Aggregator{
		ch:    ch,
		redis: rdb,
	}
}

// Record counts one delivery of snap. It reports whether the snapshot arrived
// out of order. A final snapshot flushes the session summary.
func (a *Aggregator) Record(ctx context.Context, snap *model.EnrichedSnapshot) (bool, error) {
	if a.redis == nil {
		return false, nil
	}

	ended := ""
	if snap.Final() {
		ended = strconv.FormatInt(*snap.SessionEnd, 10)
	}

	outOfOrder, err := recordScript.Run(ctx, a.redis, []string{keyPrefix + snap.SessionID},
		len(snap.EngagementEvents),
		snap.ReceivedAt,
		snap.CustomerID,
		snap.Transport,
		ended,
		sessionTTL.Milliseconds(),
	).Int()
	if err != nil {
		log.Error().Err(err).Str("session_id", snap.SessionID).Msg("Failed to record delivery in Redis")
		return false, err
	}

	if outOfOrder == 1 {
		log.Warn().
			Str("session_id", snap.SessionID).
			Int("events", len(snap.EngagementEvents)).
			Msg("Snapshot arrived out of order")
	}

	if snap.Final() {
		if err := a.FlushSession(ctx, snap.SessionID); err != nil {
			log.Error().Err(err).Str("session_id", snap.SessionID).Msg("Failed to flush session deliveries")
		}
	}

	return outOfOrder == 1, nil
}

// FlushSession writes the delivery summary to ClickHouse and forgets it
func (a *Aggregator) FlushSession(ctx context.Context, sessionID string) error {
	if a.redis == nil || a.ch == nil {
		return nil
	}

	key := keyPrefix + sessionID

	data, err := a.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return nil
	}

	if err := a.ch.UpsertDelivery(ctx, parseDeliveryData(sessionID, data)); err != nil {
		return err
	}

	// Delete from Redis after successful insert
	a.redis.Del(ctx, key)

	return nil
}

func parseDeliveryData(sessionID string, data map[string]string) storage.DeliveryRow {
	row := storage.DeliveryRow{
		SessionID:  sessionID,
		CustomerID: data["customer_id"],
		Transport:  data["transport"],
	}

	if n, err := strconv.ParseUint(data["deliveries"], 10, 32); err == nil {
		row.Deliveries = uint32(n)
	}
	if n, err := strconv.ParseUint(data["out_of_order"], 10, 32); err == nil {
		row.OutOfOrder = uint32(n)
	}
	if ms, err := strconv.ParseInt(data["first_received_at"], 10, 64); err == nil {
		row.FirstReceivedAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(data["last_received_at"], 10, 64); err == nil {
		row.LastReceivedAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(data["ended_at"], 10, 64); err == nil {
		row.EndedAt = time.UnixMilli(ms)
		row.FinalReceived = 1
	}

	return row
}

// FlushAllSessions flushes every pending session summary
func (a *Aggregator) FlushAllSessions(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}

	iter := a.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		sessionID := strings.TrimPrefix(iter.Val(), keyPrefix)
		if err := a.FlushSession(ctx, sessionID); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to flush session")
		}
	}

	return iter.Err()
}

func (a *Aggregator) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
