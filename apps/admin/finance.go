package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/bursar/apps/api/echo"
	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/finance"
	exportsvc "github.com/trezcool/bursar/services/export"
)

const dateLayout = "2006-01-02"

// the inmem store starts empty on every run, so there is nothing to remind of or export
var errInmemEngine = errors.New("this command requires the postgres database engine")

func (cli *commandLine) remind(studentIDs []string) error {
	if cli.db == nil {
		return errInmemEngine
	}
	report, err := cli.svc.SendReminders(context.Background(), finance.System, studentIDs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "reminders sent: %d, failed: %d, skipped: %d\n", report.Sent, report.Failed, report.Skipped)
	return nil
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: field, Error: "must be a date (YYYY-MM-DD)"})
	}
	return d, nil
}

func (cli *commandLine) exportLedger(out, from, to string) (err error) {
	if cli.db == nil {
		return errInmemEngine
	}
	var filter finance.LedgerFilter
	if filter.From, err = parseDate("from", from); err != nil {
		return err
	}
	if filter.To, err = parseDate("to", to); err != nil {
		return err
	}

	var w io.Writer = cli.out
	if out != "-" {
		f, ferr := os.Create(out)
		if ferr != nil {
			return errors.Wrap(ferr, "creating export file")
		}
		defer func() {
			if cerr := f.Close(); err == nil && cerr != nil {
				err = errors.Wrap(cerr, "closing export file")
			}
		}()
		w = f
	}
	return cli.svc.ExportLedger(context.Background(), finance.System, filter, exportsvc.XLSXExporter{}, w)
}

func (cli *commandLine) token(caller finance.Caller) error {
	token, err := echoapi.GenerateToken(cli.conf, echoapi.NewClaims(cli.conf, caller))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
