package appfs

import "embed"

const (
	MigrationsDir     = "migrations"
	EmailTemplatesDir = "templates/email"
)

//go:embed migrations/*.sql templates/email/*
var FS embed.FS
