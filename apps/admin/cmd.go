package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/finance"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf *core.Config
	db   *sql.DB // nil with the inmem engine
	svc  *finance.Service
	out  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, version, ...)")
	fmt.Fprintln(cli.out, "  remind [-students ID,ID] - send reminders for overdue fees")
	fmt.Fprintln(cli.out, "  export-ledger -out FILE [-from YYYY-MM-DD] [-to YYYY-MM-DD] - export the ledger as xlsx")
	fmt.Fprintln(cli.out, "  token -id ID [-name NAME] [-roles ROLE,ROLE] [-students ID,ID] [-all] - print an API token")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

// splitList splits a comma separated flag value, dropping blanks.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return core.CleanStrings(strings.Split(s, ","))
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	remindCmd := cli.newFlagSet("remind")
	remindStudents := remindCmd.String("students", "", "Comma separated student IDs. Every overdue fee when empty.")

	exportCmd := cli.newFlagSet("export-ledger")
	exportOut := exportCmd.String("out", "", "The destination file, - for stdout.")
	exportFrom := exportCmd.String("from", "", "The first day (YYYY-MM-DD).")
	exportTo := exportCmd.String("to", "", "The last day (YYYY-MM-DD), inclusive.")

	tokenCmd := cli.newFlagSet("token")
	tokenID := tokenCmd.String("id", "", "The caller's ID, used as the token subject.")
	tokenName := tokenCmd.String("name", "", "The caller's display name.")
	tokenRoles := tokenCmd.String("roles", finance.RoleAdmin, "Comma separated roles.")
	tokenStudents := tokenCmd.String("students", "", "Comma separated student IDs the caller may access.")
	tokenAll := tokenCmd.Bool("all", false, "Grant access to every student.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "remind":
		if err := remindCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.remind(splitList(*remindStudents))

	case "export-ledger":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *exportOut == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.exportLedger(*exportOut, *exportFrom, *exportTo)

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if core.CleanString(*tokenID) == "" {
			tokenCmd.Usage()
			return errHelp
		}
		caller := finance.Caller{
			ID:    core.CleanString(*tokenID),
			Name:  core.CleanString(*tokenName),
			Roles: splitList(*tokenRoles),
		}
		if !*tokenAll {
			caller.StudentIDs = splitList(*tokenStudents)
			if caller.StudentIDs == nil {
				caller.StudentIDs = []string{}
			}
		}
		return cli.token(caller)

	default:
		cli.printUsage()
		return errHelp
	}
}
