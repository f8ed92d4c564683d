package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

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
	"github.com/lucidiacare/lucidia/services/metrics"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		Metrics        *metrics.Metrics // optional
		Broker         event.Broker
		DisableReqLogs bool

		UserSvc        user.Service
		SettingsSvc    settings.Service
		FaceSvc        face.Service
		MemorySvc      memory.Service
		ReminderSvc    reminder.Service
		AlertSvc       alert.Service
		GeoSvc         geo.Service
		RecognitionSvc recognition.Service
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
		vala.IsNotNil(deps.Broker, "Broker"),
		vala.IsNotNil(deps.UserSvc, "UserSvc"),
		vala.IsNotNil(deps.SettingsSvc, "SettingsSvc"),
		vala.IsNotNil(deps.FaceSvc, "FaceSvc"),
		vala.IsNotNil(deps.MemorySvc, "MemorySvc"),
		vala.IsNotNil(deps.ReminderSvc, "ReminderSvc"),
		vala.IsNotNil(deps.AlertSvc, "AlertSvc"),
		vala.IsNotNil(deps.GeoSvc, "GeoSvc"),
		vala.IsNotNil(deps.RecognitionSvc, "RecognitionSvc"),
	).CheckAndPanic()

	s := &server{
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	if s.deps.Metrics != nil {
		s.app.Use(s.deps.Metrics.Middleware())
	}
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{conf.FrontendBaseURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig)
	target := targetMiddleware(s.deps.UserSvc)

	registerUserAPI(v1, jwt, s.auth, s.deps)
	registerSettingsAPI(v1, jwt, s.deps)
	registerFaceAPI(v1.Group("/faces", jwt, target), s.deps)
	registerMemoryAPI(v1.Group("/memories", jwt, target), s.deps)
	registerReminderAPI(v1.Group("/reminders", jwt, target), s.deps)
	registerAlertAPI(v1.Group("/alerts", jwt, target), s.deps)
	registerGPSAPI(v1.Group("/gps", jwt, target), s.deps)
	registerRecognitionAPI(v1.Group("/recognition", jwt, target), s.deps)
	registerDashboardAPI(v1.Group("/dashboard", jwt, target), s.deps)
	registerFeedAPI(v1.Group("/feed", queryTokenMiddleware, jwt, target), s.deps, websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get(echo.HeaderOrigin)
			return conf.Debug || origin == "" || origin == conf.FrontendBaseURL
		},
	})
}

func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error { return s.errors }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
