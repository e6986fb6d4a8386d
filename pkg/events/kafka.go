package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventTypeRequestSubmitted EventType = "request_submitted"
	EventTypeRequestModerated EventType = "request_moderated"
	EventTypeVoteUpdated      EventType = "vote_updated"
	EventTypeTipApplied       EventType = "tip_applied"
	EventTypeQueueUpdated     EventType = "queue_updated"
	EventTypeRequestExpired   EventType = "request_expired"
	EventTypeEventEnded       EventType = "event_ended"
)

// Delta is one state change on a live event, fanned out to every subscribed
// client. Payload carries the type-specific body.
type Delta struct {
	Type      EventType       `json:"type"`
	EventID   string          `json:"event_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type KafkaClient struct {
	writer *kafka.Writer
	reader *kafka.Reader
}

func NewKafkaClient(brokers []string, topic string, groupID string) *KafkaClient {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
	})

	return &KafkaClient{
		writer: writer,
		reader: reader,
	}
}

// PublishDelta writes one state delta keyed by event id, so deltas for the
// same event land on one partition and keep their order.
func (k *KafkaClient) PublishDelta(ctx context.Context, eventType EventType, eventID string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	delta := Delta{
		Type:      eventType,
		EventID:   eventID,
		Timestamp: time.Now(),
		Payload:   payloadJSON,
	}

	deltaJSON, err := json.Marshal(delta)
	if err != nil {
		return fmt.Errorf("failed to marshal delta: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(eventID),
		Value: deltaJSON,
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (k *KafkaClient) ConsumeDeltas(ctx context.Context, handler func(Delta) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := k.reader.ReadMessage(ctx)
			if err != nil {
				return fmt.Errorf("failed to read message: %w", err)
			}

			var delta Delta
			if err := json.Unmarshal(msg.Value, &delta); err != nil {
				return fmt.Errorf("failed to unmarshal delta: %w", err)
			}

			if err := handler(delta); err != nil {
				return fmt.Errorf("failed to handle delta: %w", err)
			}
		}
	}
}

func (k *KafkaClient) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := k.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	return nil
}

// Delta payload types
type RequestSubmittedPayload struct {
	RequestID   string `json:"request_id"`
	SongID      string `json:"song_id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	SubmitterID string `json:"submitter_id"`
	Status      string `json:"status"`
}

type RequestModeratedPayload struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Moderator string `json:"moderator"`
}

type VoteUpdatedPayload struct {
	RequestID  string `json:"request_id"`
	VoterID    string `json:"voter_id"`
	TotalVotes int    `json:"total_votes"`
}

type TipAppliedPayload struct {
	RequestID string `json:"request_id"`
	TipAmount int64  `json:"tip_amount"`
}

type QueueUpdatedPayload struct {
	Items interface{} `json:"items"`
}
