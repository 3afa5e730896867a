package events

import (
	"context"
	"encoding/json"
	"fmt"

	"canteen-system/internal/domain"
	"canteen-system/pkg/rabbitmq"
)

// Publisher pushes lifecycle events to the broker. It satisfies the order
// service's IEventPublisher.
type Publisher struct {
	mb *rabbitmq.RabbitMQ
}

func NewPublisher(mb *rabbitmq.RabbitMQ) *Publisher {
	return &Publisher{mb: mb}
}

func (p *Publisher) PublishNewOrder(_ context.Context, order domain.OrderProjection) error {
	return p.publishOrder(OrderEvent{Type: TypeNewOrder, Order: order}, RoutingKeyNewOrder)
}

func (p *Publisher) PublishOrderUpdate(_ context.Context, order domain.OrderProjection) error {
	return p.publishOrder(OrderEvent{Type: TypeOrderUpdate, Order: order}, RoutingKeyOrderUpdate)
}

func (p *Publisher) publishOrder(event OrderEvent, routingKey string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	return p.mb.PublishMessage(rabbitmq.OrdersExchange, routingKey, body)
}

// PublishNotification fans an ad-hoc notification out to every subscriber.
func (p *Publisher) PublishNotification(event NotificationEvent) error {
	event.Type = TypeNotification
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}
	return p.mb.PublishMessage(rabbitmq.NotificationsExchange, "", body)
}
