package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName   string
		Env       string // DEV (local; default), TEST, QA, PROD
		Build     string
		Debug     bool
		TestMode  bool
		SecretKey string
		WorkDir   string

		Server   ServerConfig
		Database DatabaseConfig
		Email    EmailConfig
		Finance  FinanceConfig
		Midtrans MidtransConfig

		RollbarToken string
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		DisableReqLogs     bool
		JWTExpirationDelta time.Duration
		ShutdownTimeout    time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | inmem
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		LockTimeout   time.Duration
	}

	EmailConfig struct {
		DefaultFromName    string
		DefaultFromAddress string
		SendgridApiKey     string
	}

	FinanceConfig struct {
		OpeningBalance decimal.Decimal
		ReceiptPrefix  string
		CurrencySymbol string
	}

	MidtransConfig struct {
		ServerKey     string
		UseProduction bool
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

func (conf *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: conf.Email.DefaultFromName, Address: conf.Email.DefaultFromAddress}
}

// NewConfig loads the configuration from the environment.
// Variables are prefixed with the current ENV, eg. DEV_DATABASEENGINE=postgres.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Bursar")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverDisableReqLogs", false)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("shutdownTimeout", 5*time.Second)

	v.SetDefault("databaseEngine", "inmem")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", "5432")
	v.SetDefault("databaseName", "bursar")
	v.SetDefault("databaseUser", "bursar")
	v.SetDefault("databasePassword", "")
	v.SetDefault("databaseAdminUser", "")
	v.SetDefault("databaseAdminPassword", "")
	v.SetDefault("databaseDisableTLS", true)
	v.SetDefault("databaseLockTimeout", 3*time.Second)

	v.SetDefault("defaultFromName", "Bursar")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("openingBalance", "0")
	v.SetDefault("receiptPrefix", "RCP")
	v.SetDefault("currencySymbol", "Rs.")

	v.SetDefault("midtransServerKey", "")
	v.SetDefault("midtransProduction", false)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	opening, err := decimal.NewFromString(v.GetString("openingBalance"))
	if err != nil {
		log.Fatalf("config.openingBalance(%s): %v", v.GetString("openingBalance"), err)
	}

	return &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		WorkDir:      workDir,
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:               v.GetString("serverHost"),
			Address:            v.GetString("serverAddress"),
			DebugHost:          v.GetString("serverDebugHost"),
			DisableReqLogs:     v.GetBool("serverDisableReqLogs"),
			JWTExpirationDelta: v.GetDuration("jwtExpirationDelta"),
			ShutdownTimeout:    v.GetDuration("shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("databaseEngine"),
			Host:          v.GetString("databaseHost"),
			Port:          v.GetString("databasePort"),
			Name:          v.GetString("databaseName"),
			User:          v.GetString("databaseUser"),
			Password:      v.GetString("databasePassword"),
			AdminUser:     v.GetString("databaseAdminUser"),
			AdminPassword: v.GetString("databaseAdminPassword"),
			DisableTLS:    v.GetBool("databaseDisableTLS"),
			LockTimeout:   v.GetDuration("databaseLockTimeout"),
		},
		Email: EmailConfig{
			DefaultFromName:    v.GetString("defaultFromName"),
			DefaultFromAddress: v.GetString("defaultFromEmail"),
			SendgridApiKey:     v.GetString("sendgridApiKey"),
		},
		Finance: FinanceConfig{
			OpeningBalance: opening,
			ReceiptPrefix:  v.GetString("receiptPrefix"),
			CurrencySymbol: v.GetString("currencySymbol"),
		},
		Midtrans: MidtransConfig{
			ServerKey:     v.GetString("midtransServerKey"),
			UseProduction: v.GetBool("midtransProduction"),
		},
	}
}
