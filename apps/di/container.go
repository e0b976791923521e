package di

import (
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	appfs "github.com/trezcool/bursar/assets"
	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/finance"
	emailsvc "github.com/trezcool/bursar/services/email"
	gatewaysvc "github.com/trezcool/bursar/services/gateway"
	logsvc "github.com/trezcool/bursar/services/logger"
	notifysvc "github.com/trezcool/bursar/services/notify"
	"github.com/trezcool/bursar/storage/database"
	inmemdb "github.com/trezcool/bursar/storage/database/inmem"
	sqlxrepos "github.com/trezcool/bursar/storage/database/sqlx"
)

const (
	EngineInmem    = "inmem"
	EnginePostgres = "postgres"
)

// Container holds the dependencies shared by the api and admin apps.
type Container struct {
	Conf       *core.Config
	Logger     core.Logger
	Translator ut.Translator
	Validate   *validator.Validate
	DB         *sqlx.DB // nil with the inmem engine
	Emails     core.EmailService
	Gateway    finance.Gateway
	FinanceSvc *finance.Service
}

// NewLogger returns a rollbar logger writing to stdout with the given prefix (eg. "API : ").
func NewLogger(conf *core.Config, prefix string) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	return logger
}

// SetUpDB creates the database if needed, connects to it and applies pending migrations.
func SetUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newRepository(conf *core.Config) (finance.Repository, *sqlx.DB, error) {
	switch conf.Database.Engine {
	case EngineInmem, "":
		return inmemdb.NewFinanceRepository(inmemdb.Open(conf.Database.LockTimeout)), nil, nil
	case EnginePostgres:
		db, err := SetUpDB(conf)
		if err != nil {
			return nil, nil, errors.Wrap(err, "setting up database")
		}
		return sqlxrepos.NewFinanceRepository(db, conf.Database.LockTimeout), db, nil
	default:
		return nil, nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, os.Stdout, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newGateway returns nil when online payments are not configured outside of debug mode.
func newGateway(conf *core.Config) finance.Gateway {
	switch {
	case conf.Midtrans.ServerKey != "":
		return gatewaysvc.NewMidtransGateway(conf.Midtrans)
	case conf.Debug:
		return gatewaysvc.NewDummyGateway(fmt.Sprintf("http://%s%s", conf.Server.Host, conf.Server.Address))
	default:
		return nil
	}
}

// New wires the finance service and everything it depends on.
func New(conf *core.Config, logger core.Logger) (*Container, error) {
	repo, db, err := newRepository(conf)
	if err != nil {
		return nil, err
	}

	translator := core.NewTranslator()
	validate := finance.NewValidate(translator)

	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, logger)
	emails := newEmailService(conf, logger)
	currency := conf.Finance.CurrencySymbol
	emailCh := notifysvc.NewEmailChannel(emails, currency)
	gateway := newGateway(conf)

	svc := finance.NewService(
		finance.Deps{
			Repo:     repo,
			Validate: validate,
			Logger:   logger,
			Gateway:  gateway,
			Notifiers: map[string]finance.Notifier{
				finance.ChannelEmail: emailCh,
				finance.ChannelSMS:   notifysvc.NewConsoleSMSChannel(logger, currency),
			},
			Receipts: emailCh,
		},
		finance.Options{
			OpeningBalance: conf.Finance.OpeningBalance,
			ReceiptPrefix:  conf.Finance.ReceiptPrefix,
		},
	)

	return &Container{
		Conf:       conf,
		Logger:     logger,
		Translator: translator,
		Validate:   validate,
		DB:         db,
		Emails:     emails,
		Gateway:    gateway,
		FinanceSvc: svc,
	}, nil
}

// Close releases the database connection, if any.
func (c *Container) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
