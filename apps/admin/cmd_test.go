package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/bursar/apps/api/echo"
	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/finance"
	notifysvc "github.com/trezcool/bursar/services/notify"
	testutil "github.com/trezcool/bursar/tests"
)

var conf = &core.Config{
	AppName:   "Bursar",
	SecretKey: "test-secret",
	Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
}

func setup(t *testing.T) (*commandLine, *testutil.Env, *bytes.Buffer) {
	sms := notifysvc.NewConsoleSMSChannel(core.NopLogger{}, "Rp")
	env := testutil.NewEnv(
		t,
		finance.Deps{Notifiers: map[string]finance.Notifier{finance.ChannelSMS: sms}},
		finance.Options{OpeningBalance: testutil.Dec("1000")},
	)
	var out bytes.Buffer
	return &commandLine{conf: conf, db: new(sql.DB), svc: env.Svc, out: &out}, env, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func (tt cliTest) run(t *testing.T, cli *commandLine) {
	args := append([]string{"admin"}, tt.args...)
	err := cli.run(args)
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		require.Error(t, err)
		assert.Equal(t, tt.wantErrStr, err.Error())
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, _, _ := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "export without destination", args: []string{"export-ledger"}, wantErr: errHelp},
		{name: "token without id", args: []string{"token", "-name", "Bursar"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, cli)
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	defer func(orig func(*sql.DB, string, ...string) error) { gooseRunFunc = orig }(gooseRunFunc)
	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
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
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "late_fees", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, cli)
		})
	}

	t.Run("inmem engine", func(t *testing.T) {
		cli.db = nil
		cliTest{args: []string{"migrate", "up"}, wantErr: errNoDatabase}.run(t, cli)
	})
}

func Test_commandLine_remind(t *testing.T) {
	cli, env, out := setup(t)
	ctx := context.Background()

	_, err := env.Svc.CreateEscalationRule(ctx, testutil.Admin, finance.NewEscalationRule{
		ThresholdDays: 1, Channel: finance.ChannelSMS, Template: "reminder",
	})
	require.NoError(t, err)
	env.OverdueFee(t, "500", testutil.Student("s1", "5"), 10)
	env.OverdueFee(t, "700", testutil.Student("s2", "5"), 10)

	cliTest{args: []string{"remind", "-students", "s1"}}.run(t, cli)
	assert.Equal(t, "reminders sent: 1, failed: 0, skipped: 0\n", out.String())

	out.Reset()
	cliTest{args: []string{"remind"}}.run(t, cli)
	assert.Equal(t, "reminders sent: 1, failed: 0, skipped: 1\n", out.String())

	t.Run("inmem engine", func(t *testing.T) {
		cli.db = nil
		out.Reset()
		cliTest{args: []string{"remind"}, wantErr: errInmemEngine}.run(t, cli)
		assert.Empty(t, out.String())
	})
}

func Test_commandLine_exportLedger(t *testing.T) {
	cli, env, out := setup(t)
	fee := env.OverdueFee(t, "500", testutil.Student("s1", "5"), 3)
	env.Collect(t, fee.ID, "500")

	tests := []cliTest{
		{name: "bad date", args: []string{"export-ledger", "-out", "-", "-from", "yesterday"}, wantErrStr: "from: must be a date (YYYY-MM-DD)"},
		{name: "stdout", args: []string{"export-ledger", "-out", "-", "-from", "2024-03-01", "-to", "2024-03-31"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			tt.run(t, cli)
		})
	}
	assert.True(t, strings.HasPrefix(out.String(), "PK"), "xlsx is a zip container")

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ledger.xlsx")
		cliTest{args: []string{"export-ledger", "-out", path}}.run(t, cli)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "PK", string(data[:2]))
	})

	t.Run("inmem engine", func(t *testing.T) {
		cli.db = nil
		path := filepath.Join(t.TempDir(), "ledger.xlsx")
		cliTest{args: []string{"export-ledger", "-out", path}, wantErr: errInmemEngine}.run(t, cli)
		assert.NoFileExists(t, path)
	})
}

func Test_commandLine_token(t *testing.T) {
	parse := func(t *testing.T, out *bytes.Buffer) echoapi.Claims {
		var claims echoapi.Claims
		_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), &claims, func(*jwt.Token) (interface{}, error) {
			return []byte(conf.SecretKey), nil
		})
		require.NoError(t, err)
		return claims
	}

	tests := []struct {
		name string
		args []string
		want finance.Caller
	}{
		{
			name: "admin by default",
			args: []string{"token", "-id", "bursar-1", "-name", "Bursar"},
			want: finance.Caller{ID: "bursar-1", Name: "Bursar", Roles: []string{finance.RoleAdmin}},
		},
		{
			name: "guardian",
			args: []string{"token", "-id", "g1", "-roles", finance.RoleGuardian, "-students", "s1, s2"},
			want: finance.Caller{ID: "g1", Roles: []string{finance.RoleGuardian}, StudentIDs: []string{"s1", "s2"}},
		},
		{
			name: "guardian without students",
			args: []string{"token", "-id", "g2", "-roles", finance.RoleGuardian},
			want: finance.Caller{ID: "g2", Roles: []string{finance.RoleGuardian}, StudentIDs: []string{}},
		},
		{
			name: "staff seeing every student",
			args: []string{"token", "-id", "t1", "-roles", "staff:", "-all"},
			want: finance.Caller{ID: "t1", Roles: []string{"staff:"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, _, out := setup(t)
			cliTest{args: tt.args}.run(t, cli)
			assert.Equal(t, tt.want, parse(t, out).Caller())
		})
	}
}
