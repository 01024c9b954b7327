package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/chachabrian/mooveit-dispatch/internal/directory"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"go.uber.org/zap"
)

const (
	buildTimeout = 5 * time.Second
	jobQueueSize = 1024
)

// delivery is what travels on the bus: an event plus its audience.
type delivery struct {
	Users []string        `json:"users,omitempty"`
	Topic string          `json:"topic,omitempty"`
	Event json.RawMessage `json:"event"`
}

// Broadcaster turns ride changes into websocket events. Payloads are built
// and published by a single worker so events leave in the order the
// notifier calls were made; Start delivers whatever arrives on the bus to
// the local hub.
type Broadcaster struct {
	bus       *Bus
	hub       *Hub
	directory directory.Directory
	jobs      chan func(ctx context.Context)
	logger    *zap.Logger
}

func NewBroadcaster(bus *Bus, hub *Hub, dir directory.Directory, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		bus:       bus,
		hub:       hub,
		directory: dir,
		jobs:      make(chan func(ctx context.Context), jobQueueSize),
		logger:    logger,
	}
}

// Start subscribes to the bus, then runs the publish worker and the
// delivery loop until ctx is done. It returns once the subscription is in
// place.
func (b *Broadcaster) Start(ctx context.Context) error {
	messages, err := b.bus.Subscriber.Subscribe(ctx, eventsTopic)
	if err != nil {
		return err
	}

	go b.work(ctx)
	go func() {
		for msg := range messages {
			b.deliver(msg)
			msg.Ack()
		}
	}()
	return nil
}

func (b *Broadcaster) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case run := <-b.jobs:
			jobCtx, cancel := context.WithTimeout(ctx, buildTimeout)
			run(jobCtx)
			cancel()
		}
	}
}

func (b *Broadcaster) deliver(msg *message.Message) {
	var d delivery
	if err := json.Unmarshal(msg.Payload, &d); err != nil {
		b.logger.Error("dropping malformed bus message", zap.String("uuid", msg.UUID), zap.Error(err))
		return
	}

	if d.Topic != "" {
		b.hub.SendToTopic(d.Topic, d.Event)
	}
	for _, userID := range d.Users {
		b.hub.SendToUser(userID, d.Event)
	}
}

func (b *Broadcaster) publish(users []string, topic string, ev Event) {
	event, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("failed to marshal event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	payload, err := json.Marshal(delivery{Users: users, Topic: topic, Event: event})
	if err != nil {
		b.logger.Error("failed to marshal delivery", zap.String("type", ev.Type), zap.Error(err))
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.bus.Publisher.Publish(eventsTopic, msg); err != nil {
		b.logger.Warn("failed to publish event", zap.String("type", ev.Type), zap.Error(err))
	}
}

// enqueue hands fn to the worker without blocking the caller. When the
// queue is full the event is dropped.
func (b *Broadcaster) enqueue(eventType string, fn func(ctx context.Context)) {
	select {
	case b.jobs <- fn:
	default:
		b.logger.Warn("event queue full, dropping event", zap.String("type", eventType))
	}
}

func (b *Broadcaster) profile(ctx context.Context, userID string) directory.Profile {
	if b.directory == nil {
		return directory.Profile{ID: userID}
	}
	p, err := b.directory.Profile(ctx, userID)
	if err != nil {
		b.logger.Debug("profile lookup failed", zap.String("userId", userID), zap.Error(err))
		return directory.Profile{ID: userID}
	}
	return p
}

func parties(ride *models.RideRequest) []string {
	if driverID := ride.DriverID(); driverID != "" {
		return []string{ride.PassengerID, driverID}
	}
	return []string{ride.PassengerID}
}

func (b *Broadcaster) RideCreated(ride *models.RideRequest) {
	b.enqueue(EventNewRide, func(ctx context.Context) {
		b.publish(nil, DriverPoolTopic, Event{Type: EventNewRide, Data: NewRidePayload{
			RideID:                ride.ID,
			Passenger:             b.profile(ctx, ride.PassengerID),
			Origin:                ride.Origin,
			Destination:           ride.Destination,
			SeatsRequested:        ride.SeatsRequested,
			DistanceKm:            ride.DistanceKm,
			EstimatedDurationMins: ride.EstimatedDurationMins,
			CreatedAt:             ride.CreatedAt,
		}})
	})
}

func (b *Broadcaster) RideAssigned(ride *models.RideRequest) {
	b.enqueue(EventRideAssigned, func(ctx context.Context) {
		driver := b.profile(ctx, ride.DriverID())
		b.publish(parties(ride), "", Event{Type: EventRideAssigned, Data: RideAssignedPayload{
			RideID:       ride.ID,
			DriverID:     ride.DriverID(),
			DriverName:   driver.Name,
			DriverAvatar: driver.Avatar,
			Passenger:    b.profile(ctx, ride.PassengerID),
			Origin:       ride.Origin,
			Destination:  ride.Destination,
			AssignedAt:   ride.AssignedAt,
		}})
	})
}

func (b *Broadcaster) RideStarted(ride *models.RideRequest) {
	b.enqueue(EventRideStarted, func(ctx context.Context) {
		b.publish(parties(ride), "", Event{Type: EventRideStarted, Data: progress(ride)})
	})
}

func (b *Broadcaster) RideCompleted(ride *models.RideRequest) {
	b.enqueue(EventRideCompleted, func(ctx context.Context) {
		b.publish(parties(ride), "", Event{Type: EventRideCompleted, Data: progress(ride)})
	})
}

func (b *Broadcaster) RideCancelled(ride *models.RideRequest, cancelledBy, reason string) {
	b.enqueue(EventRideCancelled, func(ctx context.Context) {
		b.publish(parties(ride), "", Event{Type: EventRideCancelled, Data: RideCancelledPayload{
			RideID:      ride.ID,
			CancelledBy: cancelledBy,
			Reason:      reason,
			CancelledAt: ride.CancelledAt,
		}})
	})
}

func (b *Broadcaster) RideStatusChanged(ride *models.RideRequest, changedBy string) {
	b.enqueue(EventRideStatusUpdate, func(ctx context.Context) {
		b.publish(parties(ride), "", Event{Type: EventRideStatusUpdate, Data: progress(ride)})
	})
}

// DriverLocationUpdated relays the position to each ride's passenger only.
func (b *Broadcaster) DriverLocationUpdated(loc *models.DriverLocation, rides []*models.RideRequest) {
	b.enqueue(EventDriverLocationUpdate, func(ctx context.Context) {
		for _, ride := range rides {
			b.publish([]string{ride.PassengerID}, "", Event{Type: EventDriverLocationUpdate, Data: DriverLocationPayload{
				RideID:    ride.ID,
				DriverID:  loc.DriverID,
				Lat:       loc.Latitude,
				Lng:       loc.Longitude,
				Speed:     loc.Speed,
				Heading:   loc.Heading,
				Timestamp: loc.Timestamp,
			}})
		}
	})
}

func progress(ride *models.RideRequest) RideProgressPayload {
	return RideProgressPayload{
		RideID:             ride.ID,
		Status:             ride.Status,
		ActualDurationMins: ride.ActualDurationMins,
		UpdatedAt:          ride.UpdatedAt,
	}
}
