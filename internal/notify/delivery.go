package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Payload is what the messaging collaborator needs to send one WhatsApp
// message. The core decides what and when; transmission is not modeled here.
type Payload struct {
	Phone         string `json:"phone"`
	WorkflowType  string `json:"workflow_type"`
	AppointmentID string `json:"appointment_id"`
	ActionToken   string `json:"action_token"`
}

// Delivery hands a payload to the messaging collaborator.
type Delivery interface {
	Deliver(ctx context.Context, p Payload) error
}

// RedisQueue pushes payloads onto a Redis list consumed by the delivery
// service. Hand-off only: delivery status feedback is owned by the consumer.
type RedisQueue struct {
	client *redis.Client
	queue  string
}

func NewRedisQueue(client *redis.Client, queue string) *RedisQueue {
	return &RedisQueue{client: client, queue: queue}
}

func (q *RedisQueue) Deliver(ctx context.Context, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal delivery payload: %w", err)
	}
	if err := q.client.LPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("enqueue delivery payload: %w", err)
	}
	return nil
}
