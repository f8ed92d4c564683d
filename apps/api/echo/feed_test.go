package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidiacare/lucidia/core/event"
	"github.com/lucidiacare/lucidia/core/face"
	"github.com/lucidiacare/lucidia/core/reminder"
)

func dialFeed(t *testing.T, srv *httptest.Server, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/feed" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func readEvent(t *testing.T, conn *websocket.Conn) event.Event {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var evt event.Event
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

func Test_feedApi(t *testing.T) {
	app := setup(t, nil)
	ctx := context.Background()
	srv := httptest.NewServer(app)
	t.Cleanup(srv.Close)

	sarah, err := app.faceSvc.Create(ctx, app.patient.ID, face.NewFace{Name: "Sarah", Relation: "Daughter"})
	require.NoError(t, err)

	t.Run("auth required", func(t *testing.T) {
		_, resp, err := dialFeed(t, srv, "", nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("bad origin", func(t *testing.T) {
		header := http.Header{"Origin": []string{"https://evil.example.com"}}
		_, resp, err := dialFeed(t, srv, "?token="+getToken(t, app.patient, app.conf), header)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("snapshot then changes", func(t *testing.T) {
		header := http.Header{"Authorization": []string{"Bearer " + getToken(t, app.caretaker, app.conf)}}
		conn, _, err := dialFeed(t, srv, "", header)
		require.NoError(t, err)

		snapshot := make(map[string]event.Event)
		for i := 0; i < 5; i++ {
			evt := readEvent(t, conn)
			assert.Equal(t, event.OpSnapshot, evt.Op)
			assert.Equal(t, app.patient.ID, evt.OwnerID)
			snapshot[evt.Collection] = evt
		}
		require.Contains(t, snapshot, event.CollectionFaces)
		var faces []face.Face
		require.NoError(t, json.Unmarshal(snapshot[event.CollectionFaces].Data, &faces))
		require.Len(t, faces, 1)
		assert.Equal(t, sarah.ID, faces[0].ID)
		assert.JSONEq(t, `[]`, string(snapshot[event.CollectionReminders].Data))

		r, err := app.reminderSvc.Create(ctx, app.patient.ID, reminder.NewReminder{Title: "Pills", Time: "08:00", Type: reminder.TypeMedication})
		require.NoError(t, err)
		evt := readEvent(t, conn)
		assert.Equal(t, event.CollectionReminders, evt.Collection)
		assert.Equal(t, event.OpCreated, evt.Op)
		assert.Equal(t, r.ID, evt.ID)

		// muted notifications are skipped, later changes still flow
		_, err = app.settingsSvc.TogglePushNotifications(ctx, app.caretaker.ID)
		require.NoError(t, err)
		app.broker.Publish(ctx, event.New(event.CollectionNotifications, event.OpNotify, app.patient.ID, r.ID,
			event.Notification{Kind: event.KindReminder, RefID: r.ID, Message: r.Message(), Severity: event.SeverityInfo}))
		require.NoError(t, app.faceSvc.Delete(ctx, app.patient.ID, sarah.ID))

		evt = readEvent(t, conn)
		assert.Equal(t, event.CollectionFaces, evt.Collection)
		assert.Equal(t, event.OpDeleted, evt.Op)
		assert.Equal(t, sarah.ID, evt.ID)
	})

	t.Run("patient receives notifications", func(t *testing.T) {
		conn, _, err := dialFeed(t, srv, "?token="+getToken(t, app.patient, app.conf), nil)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			readEvent(t, conn)
		}

		_, err = app.alertSvc.TriggerSOS(ctx, app.patient.ID)
		require.NoError(t, err)
		evt := readEvent(t, conn)
		assert.Equal(t, event.CollectionAlerts, evt.Collection)
		assert.Equal(t, event.OpCreated, evt.Op)
	})
}
