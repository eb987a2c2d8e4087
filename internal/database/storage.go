package database

import (
	"TableSide/pkg/logging"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const DRIVER = "sqlite3"

// Open connects to the sqlite ledger, creating and migrating it as needed.
// Pass ":memory:" for a private in-memory store.
func Open(dbname string) (*sqlx.DB, error) {
	logger := logging.GetLogger()
	logger.Debug("Start database.Open")
	defer logger.Debug("End database.Open")

	if dbname != ":memory:" {
		if Exists(dbname) {
			logger.Info(dbname, " exist")
		} else {
			logger.Info(dbname, " not exist, creating")
		}
	}

	db, err := sqlx.Open(DRIVER, dsn(dbname))
	if err != nil {
		return nil, errors.Wrapf(err, "failed sqlx.Open(%s)", dbname)
	}
	// sqlite serializes writers; one connection also keeps :memory: a single database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed db.Ping(%s)", dbname)
	}

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed Migrate()")
	}
	return db, nil
}

func dsn(dbname string) string {
	if dbname == ":memory:" {
		return "file::memory:?_foreign_keys=on&_busy_timeout=5000"
	}
	return "file:" + dbname + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
}
