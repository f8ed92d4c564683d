package echoapi

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/event"
	"github.com/lucidiacare/lucidia/core/geo"
	"github.com/lucidiacare/lucidia/services/metrics"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = (feedPongWait * 9) / 10
)

type feedApi struct {
	deps     ServerDeps
	logger   core.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

func registerFeedAPI(g *echo.Group, deps ServerDeps, upgrader websocket.Upgrader) {
	api := feedApi{deps: deps, logger: deps.Logger, metrics: deps.Metrics, upgrader: upgrader}
	g.GET("", api.serve)
}

// serve streams the target owner's feed: one snapshot event per collection, then every change.
func (api *feedApi) serve(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	// subscribe first so nothing published while the snapshot is built gets lost
	sub, err := api.deps.Broker.Subscribe(owner)
	if err != nil {
		return errors.Wrap(err, "subscribing to feed")
	}
	defer sub.Close()

	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// the upgrader already replied
		api.logger.Warn("upgrading feed connection", err)
		return nil
	}
	defer conn.Close()

	if api.metrics != nil {
		api.metrics.FeedSubscribers.Inc()
		defer api.metrics.FeedSubscribers.Dec()
	}

	c, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshot, err := api.snapshot(c, owner)
	if err != nil {
		api.logger.Error("building feed snapshot", err, map[string]interface{}{"owner_id": owner})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "snapshot failed"), time.Now().Add(feedWriteWait))
		return nil
	}
	for _, evt := range snapshot {
		if err = api.write(conn, evt); err != nil {
			return nil
		}
	}

	go api.readPump(conn, cancel)
	api.writePump(c, conn, sub, claims.Subject)
	return nil
}

func (api *feedApi) snapshot(ctx context.Context, owner string) ([]event.Event, error) {
	faces, err := api.deps.FaceSvc.List(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "listing faces")
	}
	memories, err := api.deps.MemorySvc.List(ctx, owner, nil)
	if err != nil {
		return nil, errors.Wrap(err, "listing memories")
	}
	reminders, err := api.deps.ReminderSvc.List(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "listing reminders")
	}
	alerts, err := api.deps.AlertSvc.List(ctx, owner, nil)
	if err != nil {
		return nil, errors.Wrap(err, "listing alerts")
	}
	zones, err := api.deps.GeoSvc.ListSafeZones(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "listing safe zones")
	}

	events := []event.Event{
		event.New(event.CollectionFaces, event.OpSnapshot, owner, "", orEmpty(len(faces), faces)),
		event.New(event.CollectionMemories, event.OpSnapshot, owner, "", orEmpty(len(memories), memories)),
		event.New(event.CollectionReminders, event.OpSnapshot, owner, "", orEmpty(len(reminders), reminders)),
		event.New(event.CollectionAlerts, event.OpSnapshot, owner, "", orEmpty(len(alerts), alerts)),
		event.New(event.CollectionSafeZones, event.OpSnapshot, owner, "", orEmpty(len(zones), zones)),
	}

	loc, err := api.deps.GeoSvc.Location(ctx, owner)
	switch {
	case err == nil:
		events = append(events, event.New(event.CollectionLocation, event.OpSnapshot, owner, owner, loc))
	case errors.Cause(err) != geo.ErrLocationNotFound:
		return nil, errors.Wrap(err, "getting location")
	}
	return events, nil
}

// orEmpty makes empty collections encode as [] rather than null.
func orEmpty(n int, list interface{}) interface{} {
	if n == 0 {
		return []struct{}{}
	}
	return list
}

func (api *feedApi) write(conn *websocket.Conn, evt event.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	return conn.WriteJSON(evt)
}

// readPump discards client messages and cancels the feed once the client goes away.
func (api *feedApi) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (api *feedApi) writePump(ctx context.Context, conn *websocket.Conn, sub event.Subscription, userID string) {
	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(feedWriteWait))
				return
			}
			if evt.IsNotification() && !api.wantsNotifications(ctx, userID) {
				continue
			}
			if err := api.write(conn, evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
				return
			}
		}
	}
}

// wantsNotifications reads the user's settings on every notification so toggles apply to open feeds.
func (api *feedApi) wantsNotifications(ctx context.Context, userID string) bool {
	s, err := api.deps.SettingsSvc.Get(ctx, userID)
	if err != nil {
		api.logger.Warn("getting settings", err, map[string]interface{}{"user_id": userID})
		return true
	}
	return s.PushNotifications
}
