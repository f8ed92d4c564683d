// Package monitor runs the background workers: the due-reminder check and the location simulator.
package monitor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/event"
	"github.com/lucidiacare/lucidia/core/geo"
	"github.com/lucidiacare/lucidia/core/reminder"
	"github.com/lucidiacare/lucidia/services/metrics"
)

type Monitor struct {
	conf        core.MonitorConfig
	reminderSvc reminder.Service
	geoSvc      geo.Service
	publisher   event.Publisher
	logger      core.Logger
	metrics     *metrics.Metrics // optional

	nowFunc func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func New(
	conf core.MonitorConfig,
	reminderSvc reminder.Service,
	geoSvc geo.Service,
	publisher event.Publisher,
	logger core.Logger,
	m *metrics.Metrics,
) *Monitor {
	vala.BeginValidation().Validate(
		vala.IsNotNil(reminderSvc, "reminderSvc"),
		vala.IsNotNil(geoSvc, "geoSvc"),
		vala.IsNotNil(publisher, "publisher"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Monitor{
		conf:        conf,
		reminderSvc: reminderSvc,
		geoSvc:      geoSvc,
		publisher:   publisher,
		logger:      logger,
		metrics:     m,
		nowFunc:     time.Now,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run blocks until ctx is cancelled or a worker fails.
func (m *Monitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.every(ctx, m.conf.ReminderInterval, "checking reminders", m.CheckReminders)
	})
	if m.conf.SimulateLocation {
		g.Go(func() error {
			return m.every(ctx, m.conf.SimulationInterval, "simulating locations", m.SimulateLocations)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// every runs tick on each interval. Tick errors are logged; only shutdown errors stop the loop.
func (m *Monitor) every(ctx context.Context, interval time.Duration, name string, tick func(context.Context) error) error {
	if interval <= 0 {
		return errors.Errorf("%s: interval must be positive, got %v", name, interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := tick(ctx); err != nil {
				if core.IsShutdown(err) {
					return err
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.logger.Error(fmt.Sprintf("%s: %v", name, err), errors.Wrap(err, name))
			}
		}
	}
}

// CheckReminders notifies every owner about their first due reminder, at most once per reminder.
// A failure for one owner is logged and does not hold back the others.
func (m *Monitor) CheckReminders(ctx context.Context) error {
	owners, err := m.reminderSvc.PendingOwners(ctx)
	if err != nil {
		return errors.Wrap(err, "listing owners with pending reminders")
	}

	now := m.nowFunc().In(m.conf.Location())
	for _, ownerID := range owners {
		if err = m.notifyDue(ctx, ownerID, now); err != nil {
			if core.IsShutdown(err) || ctx.Err() != nil {
				return err
			}
			m.logger.Error(fmt.Sprintf("checking reminders of %s: %v", ownerID, err), err,
				map[string]interface{}{"owner_id": ownerID})
		}
	}
	return nil
}

func (m *Monitor) notifyDue(ctx context.Context, ownerID string, now time.Time) error {
	r, ok, err := m.reminderSvc.Due(ctx, ownerID, now)
	if err != nil {
		return errors.Wrap(err, "finding due reminder")
	}
	if !ok {
		return nil
	}
	if _, err = m.reminderSvc.MarkNotified(ctx, ownerID, r.ID); err != nil {
		return errors.Wrap(err, "marking reminder notified")
	}

	m.publisher.Publish(ctx, event.New(event.CollectionNotifications, event.OpNotify, ownerID, r.ID, event.Notification{
		Kind:     event.KindReminder,
		RefID:    r.ID,
		Message:  r.Message(),
		Severity: event.SeverityInfo,
	}))
	if m.metrics != nil {
		m.metrics.RemindersNotified.Inc()
	}
	return nil
}

// SimulateLocations nudges every known patient location by a random drift.
func (m *Monitor) SimulateLocations(ctx context.Context) error {
	locations, err := m.geoSvc.Locations(ctx)
	if err != nil {
		return errors.Wrap(err, "listing locations")
	}

	for _, loc := range locations {
		p := geo.Point{
			Lat: loc.Lat + m.drift(),
			Lng: loc.Lng + m.drift(),
		}
		if _, err = m.geoSvc.UpdateLocation(ctx, loc.PatientID, p); err != nil {
			return errors.Wrap(err, "updating simulated location")
		}
		if m.metrics != nil {
			m.metrics.LocationUpdates.Inc()
		}
	}
	return nil
}

func (m *Monitor) drift() float64 {
	m.rndMu.Lock()
	defer m.rndMu.Unlock()
	return (m.rnd.Float64() - 0.5) * m.conf.SimulationDrift
}
