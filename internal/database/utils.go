package database

import (
	"embed"
	"os"

	"TableSide/pkg/logging"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

func Exists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sqlx.DB) error {
	logger := logging.GetLogger()
	logger.Debug("Start Migrate")
	defer logger.Debug("End Migrate")

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "failed iofs.New")
	}

	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return errors.Wrap(err, "could not create migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", src, DRIVER, driver)
	if err != nil {
		return errors.Wrap(err, "could not create migrate instance")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "could not run migrations")
	}

	version, dirty, _ := m.Version()
	logger.Infof("schema version %d, dirty=%v", version, dirty)
	return nil
}
