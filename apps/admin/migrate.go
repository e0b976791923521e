package main

import (
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/storage/database"
)

var gooseRunFunc = database.RunMigrations // mockable

var errNoDatabase = errors.New("migrations require the postgres database engine")

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(cli.db, args[0], arguments...)
}
