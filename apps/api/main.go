package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register /debug/pprof on the default mux
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	echoapi "github.com/lucidiacare/lucidia/apps/api/echo"
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
	"github.com/lucidiacare/lucidia/services/monitor"
	"github.com/lucidiacare/lucidia/services/notify"
	"github.com/lucidiacare/lucidia/services/vision"
	"github.com/lucidiacare/lucidia/storage/database"
	"github.com/lucidiacare/lucidia/storage/database/sqlxrepos"
)

const dbSetupTimeout = time.Minute

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	zl, err := logsvc.NewZapLogger("api", conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer zl.Sync()

	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug)

	if _, err = conf.Monitor.LoadLocation(); err != nil {
		logger.Fatal(fmt.Sprintf("checking config: %v", err), err)
	}

	dbLogger := logsvc.NewRollbarLogger(zl.Named("db"), conf)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	m := metrics.New()

	// set up the change feed broker
	var brk event.Broker
	if conf.Broker.NatsURL != "" {
		if brk, err = broker.NewNatsBroker(conf.Broker.NatsURL, conf.Broker.SubjectPrefix, logger, m); err != nil {
			logger.Fatal(fmt.Sprintf("connecting to NATS: %v", err), err)
		}
	} else {
		brk = broker.NewMemoryBroker(logger, m)
	}
	defer func() {
		if err = brk.Close(); err != nil {
			logger.Error("closing broker", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	usrSvc := user.NewService(db, sqlxrepos.NewUserRepository(db), mailSvc, conf)
	settingsSvc := settings.NewService(sqlxrepos.NewSettingsRepository(db))
	notifier := notify.New(usrSvc, settingsSvc, mailSvc, brk, logger, m)
	alertSvc := alert.NewService(sqlxrepos.NewAlertRepository(db), brk, notifier)
	faceSvc := face.NewService(sqlxrepos.NewFaceRepository(db), brk)
	memorySvc := memory.NewService(sqlxrepos.NewMemoryRepository(db), brk)
	reminderSvc := reminder.NewService(sqlxrepos.NewReminderRepository(db), brk)
	geoSvc := geo.NewService(sqlxrepos.NewGeoRepository(db), alertSvc, brk)

	var recognizer recognition.Recognizer // nil disables recognition
	if conf.Vision.APIKey != "" {
		gemini, err := vision.NewGeminiRecognizer(context.Background(), conf.Vision)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up vision: %v", err), err)
		}
		recognizer = gemini
	} else {
		logger.Warn("vision API key not set: face recognition disabled")
	}
	recognitionSvc := recognition.NewService(faceSvc, recognizer)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	reminder.InitValidators(validate, translator)

	core.ParseEmailTemplates(logger)

	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus collectors.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", m.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Monitor

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	mon := monitor.New(conf.Monitor, reminderSvc, geoSvc, brk, logger, m)
	monitorErrs := make(chan error, 1)
	go func() {
		monitorErrs <- mon.Run(monitorCtx)
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		Metrics:        m,
		Broker:         brk,
		UserSvc:        usrSvc,
		SettingsSvc:    settingsSvc,
		FaceSvc:        faceSvc,
		MemorySvc:      memorySvc,
		ReminderSvc:    reminderSvc,
		AlertSvc:       alertSvc,
		GeoSvc:         geoSvc,
		RecognitionSvc: recognitionSvc,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case err = <-monitorErrs:
		if err != nil {
			logger.Error(fmt.Sprintf("monitor stopped: %v", err), err)
		}
		shutdown(conf, server, logger)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		stopMonitor()
		shutdown(conf, server, logger)
	}
}

func shutdown(conf *core.Config, server echoapi.Server, logger core.Logger) {
	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	// asking listener to shutdown and shed load
	if err := server.Shutdown(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

		if err = server.Close(); err != nil {
			logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbSetupTimeout)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, errors.Wrap(err, "creating database")
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = database.Ping(ctx, db); err != nil {
		return nil, errors.Wrap(err, "pinging database")
	}
	if err = database.Migrate(db, conf); err != nil {
		return nil, errors.Wrap(err, "migrating database")
	}
	return db, nil
}
