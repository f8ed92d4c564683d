package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/user"
	"github.com/lucidiacare/lucidia/storage/database"
)

// NewConfig returns a TEST config backed by a throwaway sqlite file.
func NewConfig(t *testing.T) *core.Config {
	conf := core.NewConfig()
	conf.Env = "TEST"
	conf.Debug = false
	conf.TestMode = true
	conf.SecretKey = "test-secret"
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Name = filepath.Join(t.TempDir(), "lucidia_test.db")
	conf.Monitor.SimulateLocation = false
	conf.Vision.APIKey = ""
	conf.Broker.NatsURL = ""
	return conf
}

// PrepareDB opens and migrates a fresh database, closed when the test ends.
func PrepareDB(t *testing.T, conf ...*core.Config) *sqlx.DB {
	var cfg *core.Config
	if len(conf) > 0 && conf[0] != nil {
		cfg = conf[0]
	} else {
		cfg = NewConfig(t)
	}

	if err := database.CreateIfNotExist(context.Background(), cfg); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, cfg); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreatePatient creates an active patient holding code.
func CreatePatient(t *testing.T, repo user.Repository, name, email, pwd, code string) user.User {
	tstamp := time.Now().UTC()
	usr := user.User{
		Name:        name,
		Email:       email,
		Role:        user.RolePatient,
		PatientCode: code,
		IsActive:    true,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("CreatePatient() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreatePatient() failed: %v", err)
	}
	return usr
}

// CreateCaretaker creates an active caretaker linked to patient.
func CreateCaretaker(t *testing.T, repo user.Repository, name, email, pwd string, patient user.User) user.User {
	tstamp := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      user.RoleCaretaker,
		PatientID: patient.ID,
		IsActive:  true,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("CreateCaretaker() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateCaretaker() failed: %v", err)
	}
	return usr
}
