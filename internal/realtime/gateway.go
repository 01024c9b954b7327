package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chachabrian/mooveit-dispatch/internal/dispatch"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const handleTimeout = 10 * time.Second

// Dispatcher is the part of the dispatch service a socket can drive.
type Dispatcher interface {
	PushDriverLocation(ctx context.Context, driverID string, in dispatch.LocationUpdate) (*models.DriverLocation, error)
	UpdateRideStatus(ctx context.Context, rideID, driverID string, status models.RideStatus, reason string) (*models.RideRequest, error)
}

// Gateway upgrades authenticated requests to websockets and routes inbound
// driver events into dispatch.
type Gateway struct {
	hub        *Hub
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

func NewGateway(hub *Hub, dispatcher Dispatcher, logger *zap.Logger) *Gateway {
	return &Gateway{
		hub:        hub,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeWS upgrades the connection for an already authenticated user. The
// upgrader writes the HTTP error itself when the handshake fails.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request, userID, userType string) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.String("userId", userID), zap.Error(err))
		return
	}

	c := newClient(g.hub, conn, userID, userType, g.logger)
	g.attach(c)

	go c.writePump()
	go c.readPump(g.handle)
}

func (g *Gateway) attach(c *Client) {
	g.hub.Register(c)
	if c.UserType == string(models.UserTypeDriver) {
		g.hub.Join(c, DriverPoolTopic)
	}
}

func (g *Gateway) handle(c *Client, ev inboundEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	var err error
	switch ev.Type {
	case EventDriverLocation:
		err = g.driverLocation(ctx, c, ev.Data)
	case EventUpdateRideStatus:
		err = g.updateRideStatus(ctx, c, ev.Data)
	default:
		err = fmt.Errorf("%w: unknown event type %q", dispatch.ErrValidation, ev.Type)
	}

	if err != nil {
		c.logger.Debug("inbound event rejected", zap.String("type", ev.Type), zap.Error(err))
		c.reply(Event{Type: EventError, Data: ErrorPayload{Message: dispatch.Message(err)}})
	}
}

func (g *Gateway) driverLocation(ctx context.Context, c *Client, data json.RawMessage) error {
	if c.UserType != string(models.UserTypeDriver) {
		return fmt.Errorf("%w: only drivers can share their location", dispatch.ErrForbidden)
	}

	var in dispatch.LocationUpdate
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: invalid location payload", dispatch.ErrValidation)
	}
	_, err := g.dispatcher.PushDriverLocation(ctx, c.UserID, in)
	return err
}

func (g *Gateway) updateRideStatus(ctx context.Context, c *Client, data json.RawMessage) error {
	var req updateRideStatusRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("%w: invalid status payload", dispatch.ErrValidation)
	}
	_, err := g.dispatcher.UpdateRideStatus(ctx, req.RideID, c.UserID, req.Status, req.Reason)
	return err
}
