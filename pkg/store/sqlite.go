package store

import (
	"database/sql"
	"errors"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"

	"github.com/mattn/go-sqlite3"
)

// interface guard ensures SQLiteStore implements lnurl.Store
var _ lnurl.Store = SQLiteStore{}

type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore returns a lnurl.Store implementor that uses sqlite
func NewSQLiteStore(fileName string) (SQLiteStore, error) {
	db, err := sql.Open("sqlite3", fileName)
	if err != nil {
		return SQLiteStore{}, sqliteErr(err, "opening database")
	}
	// sqlite allows one writer; with ":memory:" every connection would
	// also be a separate database.
	db.SetMaxOpenConns(1)
	// init tables / indexes
	_, err = db.Exec(SETUP_SQL)
	if err != nil {
		db.Close()
		return SQLiteStore{}, sqliteErr(err, "creating database schema")
	}
	return SQLiteStore{sqlStore{db, dialect{
		name:   "sqlite",
		rebind: func(q string) string { return q },
		err:    sqliteErr,
	}}}, nil
}

func sqliteErr(err error, where string) error {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		if sqErr.Code == sqlite3.ErrConstraint {
			// MUST detect 'AlreadyExists' to fulfil the API contract!
			return lnurl.NewErr(lnurl.AlreadyExists, "SQLiteStore error: %s: %v", where, err)
		}
		if sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked {
			return lnurl.NewErr(lnurl.NotAvailable, "SQLiteStore error: %s: %v", where, err)
		}
	}
	return lnurl.NewErr(lnurl.PersistenceError, "SQLiteStore error: %s: %v", where, err)
}
