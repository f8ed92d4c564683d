package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/alert"
	"github.com/lucidiacare/lucidia/core/event"
	"github.com/lucidiacare/lucidia/core/face"
	"github.com/lucidiacare/lucidia/core/geo"
	"github.com/lucidiacare/lucidia/core/memory"
	"github.com/lucidiacare/lucidia/core/reminder"
	"github.com/lucidiacare/lucidia/core/user"
	"github.com/lucidiacare/lucidia/storage/database/sqlxrepos"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	gooseRunFunc     = goose.RunContext  // mockable

	errNoPassword = errors.New("a password is required")
)

type commandLine struct {
	conf     *core.Config
	db       *sqlx.DB
	validate *validator.Validate
	out      io.Writer

	usrRepo     user.Repository
	usrSvc      user.Service
	faceSvc     face.Service
	memorySvc   memory.Service
	reminderSvc reminder.Service
	geoSvc      geo.Service
}

func newCommandLine(conf *core.Config, db *sqlx.DB, mailSvc core.EmailService, out io.Writer) *commandLine {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	reminder.InitValidators(validate, translator)

	// the admin tool has no feed subscribers
	var pub event.NopPublisher
	usrRepo := sqlxrepos.NewUserRepository(db)
	alertSvc := alert.NewService(sqlxrepos.NewAlertRepository(db), pub, nil)

	return &commandLine{
		conf:        conf,
		db:          db,
		validate:    validate,
		out:         out,
		usrRepo:     usrRepo,
		usrSvc:      user.NewService(db, usrRepo, mailSvc, conf),
		faceSvc:     face.NewService(sqlxrepos.NewFaceRepository(db), pub),
		memorySvc:   memory.NewService(sqlxrepos.NewMemoryRepository(db), pub),
		reminderSvc: reminder.NewService(sqlxrepos.NewReminderRepository(db), pub),
		geoSvc:      geo.NewService(sqlxrepos.NewGeoRepository(db), alertSvc, pub),
	}
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Lucidia Care administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	root.AddCommand(
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.seedCmd(),
	)
	return root
}

// run executes args, without the program name.
func (cli *commandLine) run(ctx context.Context, args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (cli *commandLine) promptPassword() (string, error) {
	_, _ = fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if len(pwd) == 0 {
		return "", errNoPassword
	}
	return string(pwd), nil
}
