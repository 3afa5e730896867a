package events

import (
	"context"
	"encoding/json"
	"fmt"

	"canteen-system/internal/domain"
	"canteen-system/internal/hub"
	"canteen-system/pkg/logger"
	"canteen-system/pkg/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Subscriber consumes lifecycle and notification events and feeds them to
// the hub. Each process binds its own exclusive queues, so every instance
// sees every event.
type Subscriber struct {
	mb  *rabbitmq.RabbitMQ
	hub *hub.Hub
	log *logger.Logger
}

func NewSubscriber(mb *rabbitmq.RabbitMQ, h *hub.Hub, log *logger.Logger) *Subscriber {
	return &Subscriber{mb: mb, hub: h, log: log}
}

// Start consumes until the context is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	orderMsgs, err := s.bind(rabbitmq.OrdersExchange, "order.*")
	if err != nil {
		return fmt.Errorf("bind order events: %w", err)
	}
	notifMsgs, err := s.bind(rabbitmq.NotificationsExchange, "")
	if err != nil {
		return fmt.Errorf("bind notifications: %w", err)
	}

	s.log.Info("startup", "subscriber_started", "Event subscriber started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-orderMsgs:
			if !ok {
				return fmt.Errorf("order event channel closed")
			}
			if err := s.handleOrderEvent(msg.Body); err != nil {
				s.log.Error("", "process_failed", "Failed to process order event", err)
			}
		case msg, ok := <-notifMsgs:
			if !ok {
				return fmt.Errorf("notification channel closed")
			}
			if err := s.handleNotification(msg.Body); err != nil {
				s.log.Error("", "process_failed", "Failed to process notification", err)
			}
		}
	}
}

// bind declares a server-named exclusive queue on the exchange and starts
// consuming it.
func (s *Subscriber) bind(exchange, routingKey string) (<-chan amqp.Delivery, error) {
	q, err := s.mb.Channel.QueueDeclare(
		"",    // name (server generated)
		false, // durable
		false, // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = s.mb.Channel.QueueBind(q.Name, routingKey, exchange, false, nil)
	if err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	msgs, err := s.mb.Channel.Consume(
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return msgs, nil
}

func (s *Subscriber) handleOrderEvent(body []byte) error {
	var event OrderEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("unmarshal order event: %w", err)
	}

	switch event.Type {
	case TypeNewOrder:
		s.hub.BroadcastNewOrder(event.Order)
	case TypeOrderUpdate:
		s.hub.BroadcastOrderUpdate(event.Order)
	default:
		return fmt.Errorf("unknown order event type %q", event.Type)
	}
	return nil
}

func (s *Subscriber) handleNotification(body []byte) error {
	var event NotificationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("unmarshal notification event: %w", err)
	}

	if event.Role != nil && !event.Role.Valid() {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRole, *event.Role)
	}

	s.hub.SendNotification(hub.Notification{
		Title:   event.Title,
		Message: event.Message,
		Type:    event.Kind,
	}, event.Role, event.BranchID)
	return nil
}
