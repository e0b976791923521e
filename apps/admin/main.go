package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/trezcool/bursar/apps/di"
	"github.com/trezcool/bursar/core"
)

func main() {
	conf := core.NewConfig()
	logger := di.NewLogger(conf, "ADMIN : ")

	c, err := di.New(conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up dependencies: %v", err), err)
	}

	var db *sql.DB
	if c.DB != nil {
		db = c.DB.DB
	}
	cli := commandLine{conf: conf, db: db, svc: c.FinanceSvc, out: os.Stdout}

	err = cli.run(os.Args)
	if cerr := c.Close(); cerr != nil {
		logger.Error("failed to close database", cerr)
	}
	logger.Wait()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		os.Exit(1)
	}
}
