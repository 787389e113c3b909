// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package notify

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"
)

// TypeSendEmail is the asynq task type carrying a Message.
const TypeSendEmail = "email:send"

// DefaultQueue is the asynq queue email tasks go to.
const DefaultQueue = "email"

// DefaultMaxRetry is the retry budget of an email task.
const DefaultMaxRetry = 3

// enqueuer is the part of *asynq.Client the QueueNotifier uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// QueueSender hands messages to a background worker through Redis.
type QueueSender struct {
	client   enqueuer
	maxRetry int
	queue    string
}

// QueueConfig configures a QueueSender.
type QueueConfig struct {
	RedisAddr string
	MaxRetry  int
	Queue     string
}

// NewQueueSender connects an asynq client to cfg.RedisAddr.
func NewQueueSender(cfg QueueConfig) (*QueueSender, error) {
	if cfg.RedisAddr == "" {
		return nil, oops.Code("QUEUE_CONFIG_INVALID").Errorf("redis address is required")
	}
	return newQueueSender(asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), cfg), nil
}

func newQueueSender(client enqueuer, cfg QueueConfig) *QueueSender {
	if cfg.MaxRetry < 0 {
		cfg.MaxRetry = DefaultMaxRetry
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	return &QueueSender{client: client, maxRetry: cfg.MaxRetry, queue: cfg.Queue}
}

// NewQueueNotifier returns a Notifier that enqueues every message.
// The returned QueueSender must be closed by the caller.
func NewQueueNotifier(cfg QueueConfig) (*Notifier, *QueueSender, error) {
	sender, err := NewQueueSender(cfg)
	if err != nil {
		return nil, nil, err
	}
	return &Notifier{sender: sender}, sender, nil
}

// NewSendEmailTask encodes msg as a TypeSendEmail task.
func NewSendEmailTask(msg Message) (*asynq.Task, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, oops.Code("EMAIL_TASK_ENCODE_FAILED").Wrap(err)
	}
	return asynq.NewTask(TypeSendEmail, payload), nil
}

// Send enqueues msg. Delivery happens later in a Worker.
func (q *QueueSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	task, err := NewSendEmailTask(msg)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task, asynq.MaxRetry(q.maxRetry), asynq.Queue(q.queue))
	if err != nil {
		return oops.Code("EMAIL_ENQUEUE_FAILED").
			With("to", msg.To).
			With("queue", q.queue).
			Wrap(err)
	}
	return nil
}

// Close releases the Redis connection.
func (q *QueueSender) Close() error {
	if err := q.client.Close(); err != nil {
		return oops.Code("QUEUE_CLOSE_FAILED").Wrap(err)
	}
	return nil
}
