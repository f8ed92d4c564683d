package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/alert"
	"github.com/lucidiacare/lucidia/core/event"
	"github.com/lucidiacare/lucidia/core/geo"
	"github.com/lucidiacare/lucidia/core/reminder"
	"github.com/lucidiacare/lucidia/core/user"
	logsvc "github.com/lucidiacare/lucidia/services/logger"
	"github.com/lucidiacare/lucidia/services/metrics"
	"github.com/lucidiacare/lucidia/storage/database/sqlxrepos"
	"github.com/lucidiacare/lucidia/testutil"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *eventRecorder) Publish(_ context.Context, evt event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) notifications() []event.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []event.Notification
	for _, evt := range r.events {
		if evt.IsNotification() {
			var n event.Notification
			_ = json.Unmarshal(evt.Data, &n)
			list = append(list, n)
		}
	}
	return list
}

type fixture struct {
	monitor     *Monitor
	recorder    *eventRecorder
	reminderSvc reminder.Service
	geoSvc      geo.Service
	userRepo    user.Repository
	patient     user.User
}

func setup(t *testing.T, conf core.MonitorConfig) fixture {
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	patient := testutil.CreatePatient(t, usrRepo, "Margaret", "margaret@example.com", "Sunfl0wer!Garden", "AB12CD")

	rec := new(eventRecorder)
	reminderSvc := reminder.NewService(sqlxrepos.NewReminderRepository(db), rec)
	alertSvc := alert.NewService(sqlxrepos.NewAlertRepository(db), rec, nil)
	geoSvc := geo.NewService(sqlxrepos.NewGeoRepository(db), alertSvc, rec)

	return fixture{
		monitor:     New(conf, reminderSvc, geoSvc, rec, logsvc.NewNopLogger(), metrics.New()),
		recorder:    rec,
		reminderSvc: reminderSvc,
		geoSvc:      geoSvc,
		userRepo:    usrRepo,
		patient:     patient,
	}
}

func TestCheckReminders(t *testing.T) {
	ctx := context.Background()
	f := setup(t, core.MonitorConfig{Timezone: "UTC"})
	f.monitor.nowFunc = func() time.Time { return time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC) }

	later, err := f.reminderSvc.Create(ctx, f.patient.ID, reminder.NewReminder{Title: "Lunch", Time: "12:30", Type: reminder.TypeOther})
	require.NoError(t, err)
	pills, err := f.reminderSvc.Create(ctx, f.patient.ID, reminder.NewReminder{Title: "Blood pressure pills", Time: "8:00 AM", Type: reminder.TypeMedication})
	require.NoError(t, err)
	walk, err := f.reminderSvc.Create(ctx, f.patient.ID, reminder.NewReminder{Title: "Walk", Time: "09:15", Type: reminder.TypeActivity})
	require.NoError(t, err)

	// one due reminder per owner and tick, in list order
	require.NoError(t, f.monitor.CheckReminders(ctx))
	require.NoError(t, f.monitor.CheckReminders(ctx))
	require.NoError(t, f.monitor.CheckReminders(ctx))

	got := f.recorder.notifications()
	require.Len(t, got, 2)
	assert.Equal(t, event.Notification{Kind: event.KindReminder, RefID: pills.ID, Message: "Reminder: Blood pressure pills at 8:00 AM", Severity: event.SeverityInfo}, got[0])
	assert.Equal(t, walk.ID, got[1].RefID)
	assert.Equal(t, "Reminder: Walk at 9:15 AM", got[1].Message)

	list, err := f.reminderSvc.List(ctx, f.patient.ID)
	require.NoError(t, err)
	notified := make(map[string]bool)
	for _, r := range list {
		notified[r.ID] = r.Notified
	}
	assert.Equal(t, map[string]bool{later.ID: false, pills.ID: true, walk.ID: true}, notified)
}

// flakyReminders fails Due for a single owner.
type flakyReminders struct {
	reminder.Service
	failFor string
}

func (s flakyReminders) Due(ctx context.Context, ownerID string, now time.Time) (reminder.Reminder, bool, error) {
	if ownerID == s.failFor {
		return reminder.Reminder{}, false, errors.New("connection reset")
	}
	return s.Service.Due(ctx, ownerID, now)
}

func TestCheckReminders_ownerFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t, core.MonitorConfig{Timezone: "UTC"})

	second := testutil.CreatePatient(t, f.userRepo, "Joseph", "joseph@example.com", "Sunfl0wer!Garden", "EF34GH")
	for _, ownerID := range []string{f.patient.ID, second.ID} {
		_, err := f.reminderSvc.Create(ctx, ownerID, reminder.NewReminder{Title: "Pills", Time: "08:00", Type: reminder.TypeMedication})
		require.NoError(t, err)
	}

	owners, err := f.reminderSvc.PendingOwners(ctx)
	require.NoError(t, err)
	require.Len(t, owners, 2)

	// the first owner in tick order fails
	m := New(f.monitor.conf, flakyReminders{Service: f.reminderSvc, failFor: owners[0]}, f.geoSvc, f.recorder, logsvc.NewNopLogger(), nil)
	m.nowFunc = func() time.Time { return time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC) }

	require.NoError(t, m.CheckReminders(ctx))

	got := f.recorder.notifications()
	require.Len(t, got, 1)

	for i, want := range []bool{false, true} {
		list, err := f.reminderSvc.List(ctx, owners[i])
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, want, list[0].Notified, "owner %d", i)
	}
}

func TestSimulateLocations(t *testing.T) {
	ctx := context.Background()
	f := setup(t, core.MonitorConfig{SimulationDrift: 0.001})

	start := geo.Point{Lat: 40.7128, Lng: -74.0060}
	_, err := f.geoSvc.UpdateLocation(ctx, f.patient.ID, start)
	require.NoError(t, err)

	require.NoError(t, f.monitor.SimulateLocations(ctx))

	loc, err := f.geoSvc.Location(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.InDelta(t, start.Lat, loc.Lat, 0.0005+1e-9)
	assert.InDelta(t, start.Lng, loc.Lng, 0.0005+1e-9)
	assert.NotEqual(t, start, loc.Point())
}

func TestRunStopsOnCancel(t *testing.T) {
	f := setup(t, core.MonitorConfig{
		ReminderInterval:   10 * time.Millisecond,
		SimulationInterval: 10 * time.Millisecond,
		SimulateLocation:   true,
		SimulationDrift:    0.001,
	})
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.monitor.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop")
	}
}

func TestRunRejectsBadInterval(t *testing.T) {
	f := setup(t, core.MonitorConfig{})
	assert.Error(t, f.monitor.Run(context.Background()))
}
