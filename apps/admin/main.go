package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/user"
	emailsvc "github.com/lucidiacare/lucidia/services/email"
	logsvc "github.com/lucidiacare/lucidia/services/logger"
	"github.com/lucidiacare/lucidia/storage/database"
)

const cmdTimeout = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger("admin", conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer zl.Sync()

	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug)

	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()

	// set up DB
	if err = database.CreateIfNotExist(ctx, conf); err != nil {
		return err
	}
	db, err := database.Open(conf)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err = database.Ping(ctx, db); err != nil {
		return err
	}

	user.LoadCommonPasswords(logger)

	// start CLI
	cli := newCommandLine(conf, db, emailsvc.NewConsoleService(conf, logger), os.Stdout)
	return cli.run(ctx, os.Args[1:])
}
