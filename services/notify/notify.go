// Package notify fans raised alerts out to the patient's feed and to their caretakers' inboxes.
package notify

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/alert"
	"github.com/lucidiacare/lucidia/core/event"
	"github.com/lucidiacare/lucidia/core/settings"
	"github.com/lucidiacare/lucidia/core/user"
	"github.com/lucidiacare/lucidia/services/metrics"
)

const alertTemplate = "alert"

// AlertMailData is the data of the alert email template.
type AlertMailData struct {
	PatientName string
	Type        string
	Message     string
	Timestamp   time.Time
}

type Notifier struct {
	userSvc     user.Service
	settingsSvc settings.Service
	mailSvc     core.EmailService
	publisher   event.Publisher
	logger      core.Logger
	metrics     *metrics.Metrics // optional
}

var _ alert.Notifier = (*Notifier)(nil)

func New(
	userSvc user.Service,
	settingsSvc settings.Service,
	mailSvc core.EmailService,
	publisher event.Publisher,
	logger core.Logger,
	m *metrics.Metrics,
) *Notifier {
	vala.BeginValidation().Validate(
		vala.IsNotNil(userSvc, "userSvc"),
		vala.IsNotNil(settingsSvc, "settingsSvc"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(publisher, "publisher"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Notifier{
		userSvc:     userSvc,
		settingsSvc: settingsSvc,
		mailSvc:     mailSvc,
		publisher:   publisher,
		logger:      logger,
		metrics:     m,
	}
}

func severity(a alert.Alert) string {
	if a.Type == alert.TypeSOS {
		return event.SeverityDanger
	}
	return event.SeverityWarning
}

func (n *Notifier) AlertRaised(ctx context.Context, a alert.Alert) {
	if n.metrics != nil {
		n.metrics.AlertsRaised.WithLabelValues(a.Type).Inc()
	}

	n.publisher.Publish(ctx, event.New(event.CollectionNotifications, event.OpNotify, a.OwnerID, a.ID, event.Notification{
		Kind:     event.KindAlert,
		RefID:    a.ID,
		Message:  a.Message,
		Severity: severity(a),
	}))

	if err := n.mailCaretakers(ctx, a); err != nil {
		n.logger.Error(fmt.Sprintf("mailing alert to caretakers: %v", err), err, map[string]interface{}{"alert_id": a.ID})
	}
}

func (n *Notifier) mailCaretakers(ctx context.Context, a alert.Alert) error {
	patient, err := n.userSvc.GetByID(ctx, a.OwnerID)
	if err != nil {
		return errors.Wrap(err, "finding patient")
	}
	caretakers, err := n.userSvc.ListCaretakers(ctx, a.OwnerID)
	if err != nil {
		return errors.Wrap(err, "listing caretakers")
	}

	data := AlertMailData{
		PatientName: patient.Name,
		Type:        a.Type,
		Message:     a.Message,
		Timestamp:   a.Timestamp,
	}
	messages := make([]*core.EmailMessage, 0, len(caretakers))
	for _, ct := range caretakers {
		prefs, err := n.settingsSvc.Get(ctx, ct.ID)
		if err != nil {
			return errors.Wrap(err, "getting caretaker settings")
		}
		if !prefs.EmailSummary {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: ct.Name, Address: ct.Email}},
			Subject:      fmt.Sprintf("Alert for %s", patient.Name),
			TemplateName: alertTemplate,
			TemplateData: data,
		})
	}
	if len(messages) > 0 {
		n.mailSvc.SendMessages(messages...)
	}
	return nil
}
