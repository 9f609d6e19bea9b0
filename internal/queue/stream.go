package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"flashdeal-api/internal/model"

	"github.com/redis/go-redis/v9"
)

// Stream field names. The admission script appends entries with the same
// fields, so Append and the script must stay in agreement.
const (
	fieldOrderID     = "orderId"
	fieldUserID      = "userId"
	fieldPromotionID = "promotionId"
)

// DeadLetterSuffix is appended to the stream key for the dead-letter stream.
const DeadLetterSuffix = ":dead"

// Message is one delivered stream entry carrying an admitted order.
type Message struct {
	ID     string
	Values map[string]interface{}
}

// Order deserializes the message fields into an Order.
func (m *Message) Order() (*model.Order, error) {
	orderID, err := fieldInt64(m.Values, fieldOrderID)
	if err != nil {
		return nil, err
	}
	userID, err := fieldInt64(m.Values, fieldUserID)
	if err != nil {
		return nil, err
	}
	promotionID, err := fieldInt64(m.Values, fieldPromotionID)
	if err != nil {
		return nil, err
	}

	return &model.Order{
		ID:          orderID,
		UserID:      userID,
		PromotionID: promotionID,
		CreatedAt:   time.Now(),
	}, nil
}

func fieldInt64(values map[string]interface{}, name string) (int64, error) {
	raw, ok := values[name]
	if !ok {
		return 0, fmt.Errorf("missing stream field %q", name)
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("stream field %q is not a string", name)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stream field %q is not an int64: %w", name, err)
	}
	return n, nil
}

// Queue is a durable, consumer-group-based order stream on Redis.
// Entries are appended by the admission script (or Append) and consumed by a
// single named consumer; unacknowledged deliveries stay on the group's
// pending-entries list until acknowledged or dead-lettered.
type Queue struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
}

// New creates a Queue. Call EnsureGroup before consuming.
func New(client *redis.Client, stream, group, consumer string) *Queue {
	return &Queue{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
	}
}

// Stream returns the stream key.
func (q *Queue) Stream() string {
	return q.stream
}

// EnsureGroup creates the consumer group (and the stream if absent).
// Safe to call on every startup.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %q: %w", q.group, err)
	}
	return nil
}

// Append adds an admitted order to the stream and returns the
// server-assigned entry id. The hot admission path appends from inside the
// Lua script instead; this is for warm paths and tooling.
func (q *Queue) Append(ctx context.Context, order *model.Order) (string, error) {
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{
			fieldOrderID:     strconv.FormatInt(order.ID, 10),
			fieldUserID:      strconv.FormatInt(order.UserID, 10),
			fieldPromotionID: strconv.FormatInt(order.PromotionID, 10),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append order %d: %w", order.ID, err)
	}
	return id, nil
}

// ReadNew blocks up to the given duration for one new entry.
// Returns (nil, nil) when the wait window elapses with nothing to deliver.
func (q *Queue) ReadNew(ctx context.Context, block time.Duration) (*Message, error) {
	return q.read(ctx, ">", block)
}

// ReadPending reads one entry from this consumer's pending-entries list:
// messages delivered before (possibly by a crashed run) but never
// acknowledged. Returns (nil, nil) when the pending list is empty.
func (q *Queue) ReadPending(ctx context.Context) (*Message, error) {
	return q.read(ctx, "0", 0)
}

func (q *Queue) read(ctx context.Context, cursor string, block time.Duration) (*Message, error) {
	args := &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, cursor},
		Count:    1,
		Block:    -1, // non-blocking; history reads never block anyway
	}
	if block > 0 {
		args.Block = block
	}

	streams, err := q.client.XReadGroup(ctx, args).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stream %q: %w", q.stream, err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	msg := streams[0].Messages[0]
	return &Message{ID: msg.ID, Values: msg.Values}, nil
}

// Ack acknowledges a delivered entry, removing it from the pending list.
func (q *Queue) Ack(ctx context.Context, id string) error {
	if err := q.client.XAck(ctx, q.stream, q.group, id).Err(); err != nil {
		return fmt.Errorf("failed to ack %s: %w", id, err)
	}
	return nil
}

// DeliveryCount returns how many times the entry has been delivered.
// Returns 0 for entries no longer pending.
func (q *Queue) DeliveryCount(ctx context.Context, id string) (int64, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read pending entry %s: %w", id, err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	return pending[0].RetryCount, nil
}

// DeadLetter moves an entry to the dead-letter stream and acknowledges the
// original so it stops cycling through pending recovery.
func (q *Queue) DeadLetter(ctx context.Context, msg *Message) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream + DeadLetterSuffix,
		Values: msg.Values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to dead-letter %s: %w", msg.ID, err)
	}
	return q.Ack(ctx, msg.ID)
}
