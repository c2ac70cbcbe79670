package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"warehouse-service/internal/models"
	"warehouse-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderEvent publishes an order event keyed by order
func (ep *EventPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.publish(ctx, key, event.EventType, event)
}

// PublishProductEvent publishes a product event keyed by product
func (ep *EventPublisher) PublishProductEvent(ctx context.Context, event *models.ProductEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.publish(ctx, key, event.EventType, event)
}

func (ep *EventPublisher) publish(ctx context.Context, key, eventType string, event interface{}) error {
	if err := ep.producer.PublishEvent(ctx, key, event); err != nil {
		util.EventsPublishedTotal.WithLabelValues(eventType, "error").Inc()
		return err
	}
	util.EventsPublishedTotal.WithLabelValues(eventType, "ok").Inc()
	return nil
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	return nil
}

func (NopPublisher) PublishProductEvent(ctx context.Context, event *models.ProductEvent) error {
	return nil
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderEvent   func(context.Context, *models.OrderEvent) error
	onProductEvent func(context.Context, *models.ProductEvent) error
	logger         *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderEvent registers a handler for order events of any type
func (eh *EventHandler) OnOrderEvent(handler func(context.Context, *models.OrderEvent) error) {
	eh.onOrderEvent = handler
}

// OnProductEvent registers a handler for product events of any type
func (eh *EventHandler) OnProductEvent(handler func(context.Context, *models.ProductEvent) error) {
	eh.onProductEvent = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	err := eh.dispatch(ctx, baseEvent.EventType, msg.Value)
	result := "ok"
	if err != nil {
		result = "error"
	}
	util.EventsConsumedTotal.WithLabelValues(baseEvent.EventType, result).Inc()
	return err
}

func (eh *EventHandler) dispatch(ctx context.Context, eventType string, payload []byte) error {
	switch eventType {
	case models.EventTypeOrderCreated, models.EventTypeOrderUpdated, models.EventTypeOrderDeleted:
		if eh.onOrderEvent != nil {
			var event models.OrderEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return fmt.Errorf("failed to unmarshal %s event: %w", eventType, err)
			}
			return eh.onOrderEvent(ctx, &event)
		}

	case models.EventTypeProductUpdated, models.EventTypeProductDeleted:
		if eh.onProductEvent != nil {
			var event models.ProductEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return fmt.Errorf("failed to unmarshal %s event: %w", eventType, err)
			}
			return eh.onProductEvent(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", eventType))
	}

	return nil
}
