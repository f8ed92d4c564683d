package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/alert"
	"github.com/lucidiacare/lucidia/core/event"
	"github.com/lucidiacare/lucidia/core/face"
	"github.com/lucidiacare/lucidia/core/geo"
	"github.com/lucidiacare/lucidia/core/memory"
	"github.com/lucidiacare/lucidia/core/recognition"
	"github.com/lucidiacare/lucidia/core/reminder"
	"github.com/lucidiacare/lucidia/core/settings"
	"github.com/lucidiacare/lucidia/core/user"
	"github.com/lucidiacare/lucidia/services/broker"
	emailsvc "github.com/lucidiacare/lucidia/services/email"
	logsvc "github.com/lucidiacare/lucidia/services/logger"
	"github.com/lucidiacare/lucidia/services/metrics"
	"github.com/lucidiacare/lucidia/storage/database/sqlxrepos"
	"github.com/lucidiacare/lucidia/testutil"
)

const pwd = "Sunfl0wer!Garden"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	Server
	conf    *core.Config
	metrics *metrics.Metrics
	broker  event.Broker
	usrRepo user.Repository
	mailSvc *emailsvc.ConsoleServiceMock

	settingsSvc settings.Service
	faceSvc     face.Service
	memorySvc   memory.Service
	reminderSvc reminder.Service
	alertSvc    alert.Service
	geoSvc      geo.Service

	patient   user.User
	caretaker user.User
}

// setup serves a fresh app with one patient and their caretaker; recognizer may be nil.
func setup(t *testing.T, recognizer recognition.Recognizer) *testApp {
	conf := testutil.NewConfig(t)
	db := testutil.PrepareDB(t, conf)
	logger := logsvc.NewNopLogger()
	core.ParseEmailTemplates(logger, true)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	reminder.InitValidators(validate, translator)

	m := metrics.New()
	brk := broker.NewMemoryBroker(logger, m)
	t.Cleanup(func() { _ = brk.Close() })

	app := &testApp{
		conf:    conf,
		metrics: m,
		broker:  brk,
		usrRepo: sqlxrepos.NewUserRepository(db),
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
	}
	usrSvc := user.NewServiceMock(db, app.usrRepo, app.mailSvc, conf)
	app.settingsSvc = settings.NewService(sqlxrepos.NewSettingsRepository(db))
	app.faceSvc = face.NewService(sqlxrepos.NewFaceRepository(db), brk)
	app.memorySvc = memory.NewService(sqlxrepos.NewMemoryRepository(db), brk)
	app.reminderSvc = reminder.NewService(sqlxrepos.NewReminderRepository(db), brk)
	app.alertSvc = alert.NewService(sqlxrepos.NewAlertRepository(db), brk, nil)
	app.geoSvc = geo.NewService(sqlxrepos.NewGeoRepository(db), app.alertSvc, brk)

	app.Server = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		Metrics:        m,
		Broker:         brk,
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		SettingsSvc:    app.settingsSvc,
		FaceSvc:        app.faceSvc,
		MemorySvc:      app.memorySvc,
		ReminderSvc:    app.reminderSvc,
		AlertSvc:       app.alertSvc,
		GeoSvc:         app.geoSvc,
		RecognitionSvc: recognition.NewService(app.faceSvc, recognizer),
	})
	t.Cleanup(func() { _ = app.Close() })

	app.patient = testutil.CreatePatient(t, app.usrRepo, "Margaret", "margaret@example.com", pwd, "AB12CD")
	app.caretaker = testutil.CreateCaretaker(t, app.usrRepo, "Tom", "tom@example.com", pwd, app.patient)
	return app
}

func (app *testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, usr user.User, conf *core.Config) string {
	token, err := GenerateToken(GetUserClaims(usr, conf), conf)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), obj), rec.Body.String())
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, "code")
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			checkCodeAndData(t, tt, app.do(method, tt.path, tt.token, tt.body))
		})
	}
}
