package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"dealfeed/internal/domain/task"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	streamPrefix = "dealfeed:stream:"

	fieldType = "task_type"
	fieldData = "task_data"
)

// Message is one task read from a stream.
type Message struct {
	ID       string
	Stream   string
	TaskType string
	Data     []byte
}

// Queue moves tasks through Redis streams. Every reader joins the same
// consumer group, so a task is delivered to one worker until acked.
type Queue interface {
	AddTask(ctx context.Context, t task.Task) (string, error)
	// GetTask returns nil, nil when nothing arrived before the read timed out.
	GetTask(ctx context.Context, consumer, stream string) (*Message, error)
	AckTask(ctx context.Context, msg *Message) error
	// AutoClaim takes over messages another consumer left pending for at least minIdle.
	AutoClaim(ctx context.Context, consumer, stream string, minIdle time.Duration) ([]Message, error)
	EnsureStreamsExist(ctx context.Context) error
}

// StreamName returns the stream that carries tasks of taskType.
func StreamName(taskType string) string {
	return streamPrefix + taskType
}

type RedisQueue struct {
	redisClient *redis.Client
	group       string
	blockFor    time.Duration
	claimCount  int64

	// XAUTOCLAIM resume position per stream, so one stuck entry at the head
	// of the pending list does not hide the ones behind it.
	cursorMu     sync.Mutex
	claimCursors map[string]string
}

func NewRedisQueue(ctx context.Context, redisClient *redis.Client, group string) (*RedisQueue, error) {
	q := &RedisQueue{
		redisClient: redisClient,
		group:       group,
		blockFor:    5 * time.Second,
		claimCount:  10,

		claimCursors: make(map[string]string),
	}

	if err := q.EnsureStreamsExist(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure streams exist: %w", err)
	}

	return q, nil
}

func (q *RedisQueue) AddTask(ctx context.Context, t task.Task) (string, error) {
	stream := StreamName(t.TaskType())

	data, err := t.TaskValue()
	if err != nil {
		return "", fmt.Errorf("failed to serialize task: %w", err)
	}

	id, err := q.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			fieldType: t.TaskType(),
			fieldData: string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add task to Redis stream %s: %w", stream, err)
	}

	log.Debugf("Queued %s as %s", t.TaskType(), id)
	return id, nil
}

func (q *RedisQueue) GetTask(ctx context.Context, consumer, stream string) (*Message, error) {
	streams, err := q.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    q.blockFor,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from Redis stream %s: %w", stream, err)
	}

	for _, s := range streams {
		for _, xm := range s.Messages {
			if msg, ok := q.decode(ctx, stream, xm); ok {
				return &msg, nil
			}
		}
	}
	return nil, nil
}

func (q *RedisQueue) AckTask(ctx context.Context, msg *Message) error {
	if err := q.redisClient.XAck(ctx, msg.Stream, q.group, msg.ID).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s on %s: %w", msg.ID, msg.Stream, err)
	}
	return nil
}

func (q *RedisQueue) AutoClaim(ctx context.Context, consumer, stream string, minIdle time.Duration) ([]Message, error) {
	claimed, next, err := q.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    q.claimCursor(stream),
		Count:    q.claimCount,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to claim messages from Redis stream %s: %w", stream, err)
	}
	if err == nil {
		q.setClaimCursor(stream, next)
	}

	out := make([]Message, 0, len(claimed))
	for _, xm := range claimed {
		if msg, ok := q.decode(ctx, stream, xm); ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (q *RedisQueue) claimCursor(stream string) string {
	q.cursorMu.Lock()
	defer q.cursorMu.Unlock()

	if cursor, ok := q.claimCursors[stream]; ok {
		return cursor
	}
	return "0-0"
}

// setClaimCursor stores where the next scan starts. Redis answers "0-0" once
// the whole pending list was scanned, which starts the next pass over.
func (q *RedisQueue) setClaimCursor(stream, next string) {
	if next == "" {
		next = "0-0"
	}

	q.cursorMu.Lock()
	q.claimCursors[stream] = next
	q.cursorMu.Unlock()
}

// decode turns a stream entry into a Message. Entries without the task fields
// can never be processed, so they are acked and dropped here.
func (q *RedisQueue) decode(ctx context.Context, stream string, xm redis.XMessage) (Message, bool) {
	taskType, okType := xm.Values[fieldType].(string)
	data, okData := xm.Values[fieldData].(string)
	if okType && okData {
		return Message{ID: xm.ID, Stream: stream, TaskType: taskType, Data: []byte(data)}, true
	}

	log.Warnf("⚠️ Dropping malformed message %s on %s", xm.ID, stream)
	if err := q.redisClient.XAck(ctx, stream, q.group, xm.ID).Err(); err != nil {
		log.Errorf("❌ Failed to ack malformed message %s: %v", xm.ID, err)
	}
	return Message{}, false
}

// EnsureStreamsExist creates every task stream with the consumer group so
// workers can start reading before anything was queued.
func (q *RedisQueue) EnsureStreamsExist(ctx context.Context) error {
	for _, taskType := range task.Types {
		stream := StreamName(taskType)

		err := q.redisClient.XGroupCreateMkStream(ctx, stream, q.group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group for %s: %w", taskType, err)
		}

		log.Debugf("Stream %s ready for group %s", stream, q.group)
	}

	log.Infof("🔧 %d task streams ready for group %s", len(task.Types), q.group)
	return nil
}
