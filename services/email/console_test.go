package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidiacare/lucidia/core"
	logsvc "github.com/lucidiacare/lucidia/services/logger"
)

func TestConsoleServiceMock(t *testing.T) {
	conf := core.NewConfig()
	conf.FrontendBaseURL = "http://lucidia.test"
	logger := logsvc.NewNopLogger()
	core.ParseEmailTemplates(logger, true)

	svc := NewConsoleServiceMock(conf, logger)
	to := []mail.Address{{Name: "Tom", Address: "tom@example.com"}}

	tests := []struct {
		name     string
		msg      *core.EmailMessage
		wantSent bool
		contains []string
	}{
		{
			name: "password reset",
			msg: &core.EmailMessage{
				To:           to,
				Subject:      "Password Reset",
				TemplateName: "password_reset",
				TemplateData: map[string]string{"UID": "dWlk", "Token": "tok-en"},
			},
			wantSent: true,
			contains: []string{"http://lucidia.test/password-reset-confirm/dWlk/tok-en", "Tom"},
		},
		{
			name:     "plain body",
			msg:      &core.EmailMessage{To: to, Subject: "Hi", BodyStr: "hello"},
			wantSent: true,
			contains: []string{"hello"},
		},
		{name: "no recipients", msg: &core.EmailMessage{BodyStr: "hello"}},
		{name: "unknown template", msg: &core.EmailMessage{To: to, TemplateName: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc.Reset()
			svc.SendMessages(tt.msg)
			sent := svc.SentMessages()
			if !tt.wantSent {
				assert.Empty(t, sent)
				return
			}
			require.Len(t, sent, 1)
			for _, s := range tt.contains {
				assert.Contains(t, sent[0].TextContent, s)
			}
		})
	}
}
