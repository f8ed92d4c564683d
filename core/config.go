package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env      string // DEV (local; default), TEST, QA, PROD
		Build    string
		Debug    bool
		TestMode bool

		AppName         string
		SecretKey       string
		FrontendBaseURL string
		RollbarToken    string
		SendgridApiKey  string

		defaultFromName  string
		defaultFromEmail string

		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Monitor  MonitorConfig
		Vision   VisionConfig
		Broker   BrokerConfig
	}

	ServerConfig struct {
		Host                      string
		Addr                      string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          string
		Name          string // DB name; file path for sqlite
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	MonitorConfig struct {
		ReminderInterval   time.Duration
		SimulationInterval time.Duration
		SimulateLocation   bool
		SimulationDrift    float64
		Timezone           string
	}

	VisionConfig struct {
		APIKey      string
		Model       string
		Temperature float64
	}

	BrokerConfig struct {
		NatsURL       string
		SubjectPrefix string
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.defaultFromName, Address: c.defaultFromEmail}
}

// LoadLocation resolves Timezone; an empty one means the server's local zone.
func (c MonitorConfig) LoadLocation() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid monitor timezone %q", c.Timezone)
	}
	return loc, nil
}

// Location returns the time zone reminder times are expressed in.
// The binaries reject an invalid Timezone at startup through LoadLocation.
func (c MonitorConfig) Location() *time.Location {
	loc, err := c.LoadLocation()
	if err != nil {
		return time.Local
	}
	return loc
}

func (c DatabaseConfig) Address() string {
	if c.Port == "" {
		return c.Host
	}
	return net.JoinHostPort(c.Host, c.Port)
}

func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Lucidia Care")
	v.SetDefault("secretKey", "k2v$9!sq0-lucidia)caq8#o_e%4ml+0!rf*3wz&g@h7yd^p")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromName", "Lucidia Care")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 5*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 30*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "lucidia")
	v.SetDefault("database.user", "lucidia")
	v.SetDefault("database.password", "lucidia")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")

	v.SetDefault("monitor.reminderInterval", 5*time.Second)
	v.SetDefault("monitor.simulationInterval", 8*time.Second)
	v.SetDefault("monitor.simulateLocation", env == "DEV")
	v.SetDefault("monitor.simulationDrift", 0.001)
	v.SetDefault("monitor.timezone", "")

	v.SetDefault("vision.apiKey", "")
	v.SetDefault("vision.model", "gemini-3-flash-preview")
	v.SetDefault("vision.temperature", 0.1)

	v.SetDefault("broker.natsURL", "")
	v.SetDefault("broker.subjectPrefix", "lucidia.feed")

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		RollbarToken:              v.GetString("rollbarToken"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		defaultFromName:           v.GetString("defaultFromName"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Addr:                      v.GetString("server.addr"),
			DebugHost:                 v.GetString("server.debugHost"),
			ReadTimeout:               v.GetDuration("server.readTimeout"),
			WriteTimeout:              v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Monitor: MonitorConfig{
			ReminderInterval:   v.GetDuration("monitor.reminderInterval"),
			SimulationInterval: v.GetDuration("monitor.simulationInterval"),
			SimulateLocation:   v.GetBool("monitor.simulateLocation"),
			SimulationDrift:    v.GetFloat64("monitor.simulationDrift"),
			Timezone:           v.GetString("monitor.timezone"),
		},
		Vision: VisionConfig{
			APIKey:      v.GetString("vision.apiKey"),
			Model:       v.GetString("vision.model"),
			Temperature: v.GetFloat64("vision.temperature"),
		},
		Broker: BrokerConfig{
			NatsURL:       v.GetString("broker.natsURL"),
			SubjectPrefix: v.GetString("broker.subjectPrefix"),
		},
	}
}
