package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidiacare/lucidia/core/user"
	emailsvc "github.com/lucidiacare/lucidia/services/email"
	logsvc "github.com/lucidiacare/lucidia/services/logger"
	"github.com/lucidiacare/lucidia/testutil"
)

const pwd = "Sunfl0wer!Garden"

func setup(t *testing.T) *commandLine {
	conf := testutil.NewConfig(t)
	db := testutil.PrepareDB(t, conf)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logsvc.NewNopLogger())
	return newCommandLine(conf, db, mailSvc, new(bytes.Buffer))
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), tt.wantErrStr)
		}
	default:
		assert.NoError(t, err)
	}
}

func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	orig := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = orig })
	gooseRunFunc = func(_ context.Context, command string, db *sql.DB, dir string, args ...string) error {
		if db == nil || dir != "migrations" {
			return fmt.Errorf("bad goose setup: %v %q", db, dir)
		}
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErrStr: "requires at least 1 arg(s)"},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_visits", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(context.Background(), tt.args))
		})
	}
}

func Test_commandLine_unknownCommand(t *testing.T) {
	cli := setup(t)
	err := cli.run(context.Background(), []string{"lol"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "lol"`)
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	existing := testutil.CreatePatient(t, cli.usrRepo, "Margaret", "margaret@lucidia.care", "0ld!Passw0rd", "AB12CD")

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no email", args: []string{"adduser", "--name", "Joe"}, extra: extra{pwd: pwd}, wantErrStr: `required flag(s) "email" not set`},
		{name: "no password", args: []string{"adduser", "--email", "joe@lucidia.care"}, wantErr: errNoPassword},
		{name: "unknown role", args: []string{"adduser", "--name", "Joe", "--email", "joe@lucidia.care", "--role", "admin"}, extra: extra{pwd: pwd}, wantErrStr: `unknown role "admin"`},
		{name: "weak password", args: []string{"adduser", "--name", "Joe", "--email", "joe@lucidia.care"}, extra: extra{pwd: "12345678"}, wantErrStr: "'password'"},
		{name: "caretaker: bad code", args: []string{"adduser", "--name", "Tom", "--email", "tom@lucidia.care", "--role", "caretaker", "--patient-code", "ZZZZZZ"}, extra: extra{pwd: pwd}, wantErrStr: "This ID does not exist"},
		{name: "patient", args: []string{"adduser", "--name", "Joe", "--email", "Joe@Lucidia.care"}, extra: extra{pwd: pwd}},
		{name: "caretaker", args: []string{"adduser", "--name", "Tom", "--email", "tom@lucidia.care", "--role", "caretaker", "--patient-code", "ab12cd"}, extra: extra{pwd: pwd}},
		{name: "existing user", args: []string{"adduser", "--email", existing.Email}, extra: extra{pwd: pwd}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p string
			if e, ok := tt.extra.(extra); ok {
				p = e.pwd
			}
			mockPassword(t, p)
			tt.check(t, cli.run(ctx, tt.args))
		})
	}

	joe, err := cli.usrSvc.GetByEmail(ctx, "joe@lucidia.care")
	require.NoError(t, err)
	assert.Equal(t, user.RolePatient, joe.Role)
	assert.Len(t, joe.PatientCode, 6)
	assert.NoError(t, joe.CheckPassword(pwd))

	tom, err := cli.usrSvc.GetByEmail(ctx, "tom@lucidia.care")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, tom.PatientID)

	margaret, err := cli.usrSvc.GetByEmail(ctx, existing.Email)
	require.NoError(t, err)
	assert.NoError(t, margaret.CheckPassword(pwd))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	usr := testutil.CreatePatient(t, cli.usrRepo, "Margaret", "margaret@lucidia.care", "0ld!Passw0rd", "AB12CD")

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, extra: extra{pwd: "lol"}, wantErrStr: `required flag(s) "email" not set`},
		{name: "no password", args: []string{"resetpassword", "--email", usr.Email}, wantErr: errNoPassword},
		{name: "user not found", args: []string{"resetpassword", "--email", "lol@lucidia.care"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "--email", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p string
			if e, ok := tt.extra.(extra); ok {
				p = e.pwd
			}
			mockPassword(t, p)
			tt.check(t, cli.run(ctx, tt.args))
		})
	}

	refreshed, err := cli.usrRepo.GetUser(ctx, user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("lmao"))
}

func Test_commandLine_seed(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	require.NoError(t, cli.run(ctx, []string{"seed"}))

	patient, err := cli.usrSvc.GetByEmail(ctx, "margaret@lucidia.care")
	require.NoError(t, err)

	caretakers, err := cli.usrSvc.ListCaretakers(ctx, patient.ID)
	require.NoError(t, err)
	assert.Len(t, caretakers, 1)

	faces, err := cli.faceSvc.List(ctx, patient.ID)
	require.NoError(t, err)
	assert.Len(t, faces, 3)

	memories, err := cli.memorySvc.List(ctx, patient.ID, nil)
	require.NoError(t, err)
	assert.Len(t, memories, 2)

	reminders, err := cli.reminderSvc.List(ctx, patient.ID)
	require.NoError(t, err)
	assert.Len(t, reminders, 3)

	zones, err := cli.geoSvc.ListSafeZones(ctx, patient.ID)
	require.NoError(t, err)
	assert.Len(t, zones, 1)
	assert.False(t, zones[0].IsOutside)

	loc, err := cli.geoSvc.Location(ctx, patient.ID)
	require.NoError(t, err)
	assert.InDelta(t, -4.3218, loc.Lat, 1e-9)

	t.Run("seeding twice", func(t *testing.T) {
		err := cli.run(ctx, []string{"seed"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validating patient")
	})

	t.Run("missing file", func(t *testing.T) {
		err := cli.run(ctx, []string{"seed", "--file", "/nope/seed.yaml"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading seed file")
	})
}
