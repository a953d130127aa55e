package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
)

const SETUP_SQL string = `
CREATE TABLE IF NOT EXISTS pending_invoice (
	hash TEXT NOT NULL PRIMARY KEY,
	mint TEXT NOT NULL,
	username TEXT NOT NULL,
	description TEXT NOT NULL,
	amount BIGINT NOT NULL,
	bolt11 TEXT NOT NULL,
	last_checked BIGINT,
	proxied BOOLEAN NOT NULL,
	created BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS pending_invoice_created_i ON pending_invoice (created);

CREATE TABLE IF NOT EXISTS users (
	username TEXT NOT NULL PRIMARY KEY,
	mint TEXT NOT NULL,
	pubkey TEXT NOT NULL,
	relays TEXT NOT NULL,
	proxy BOOLEAN NOT NULL
);
`

// NewStore opens the store named by path: a postgres:// URL selects
// Postgres, anything else is a SQLite file (or ":memory:").
func NewStore(path string) (lnurl.Store, error) {
	if strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://") {
		return NewPostgresStore(path)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, lnurl.NewErr(lnurl.PersistenceError, "creating store dir: %v", err)
		}
	}
	return NewSQLiteStore(path)
}

// dialect is what differs between the SQL backends.
type dialect struct {
	name   string
	rebind func(query string) string
	err    func(err error, where string) error
}

// sqlStore implements lnurl.Store over database/sql.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

func (s sqlStore) exec(where string, query string, args ...any) (sql.Result, error) {
	res, err := s.db.Exec(s.d.rebind(query), args...)
	if err != nil {
		return nil, s.d.err(err, where)
	}
	return res, nil
}

// Defer this until shutdown
func (s sqlStore) Close() {
	s.db.Close()
}

const pendingInvoiceColumns = "hash, mint, username, description, amount, bolt11, last_checked, proxied, created"

func (s sqlStore) GetPendingInvoice(hash string) (lnurl.PendingInvoice, error) {
	row := s.db.QueryRow(s.d.rebind("SELECT "+pendingInvoiceColumns+" FROM pending_invoice WHERE hash = ?"), hash)
	inv, err := scanPendingInvoice(row)
	if err == sql.ErrNoRows {
		return lnurl.PendingInvoice{}, lnurl.NewErr(lnurl.NotFound, "pending invoice not found: %v", hash)
	}
	if err != nil {
		return lnurl.PendingInvoice{}, s.d.err(err, "GetPendingInvoice: row.Scan")
	}
	return inv, nil
}

func (s sqlStore) StorePendingInvoice(inv lnurl.PendingInvoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	var lastChecked sql.NullInt64
	if inv.LastChecked != nil {
		lastChecked = sql.NullInt64{Int64: inv.LastChecked.Unix(), Valid: true}
	}
	created := inv.Time
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.exec("StorePendingInvoice",
		`INSERT INTO pending_invoice (`+pendingInvoiceColumns+`) VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT (hash) DO UPDATE SET mint=excluded.mint, username=excluded.username,
		description=excluded.description, amount=excluded.amount, bolt11=excluded.bolt11,
		last_checked=excluded.last_checked, proxied=excluded.proxied, created=excluded.created`,
		inv.Hash, inv.Mint, inv.Username, inv.Description, int64(inv.Amount), inv.Bolt11,
		lastChecked, inv.Proxied, created.Unix())
	return err
}

func (s sqlStore) RemovePendingInvoice(hash string) error {
	_, err := s.exec("RemovePendingInvoice", "DELETE FROM pending_invoice WHERE hash = ?", hash)
	return err
}

func (s sqlStore) ListPendingInvoices(proxiedOnly bool) ([]lnurl.PendingInvoice, error) {
	query := "SELECT " + pendingInvoiceColumns + " FROM pending_invoice"
	if proxiedOnly {
		query += " WHERE proxied = TRUE"
	}
	query += " ORDER BY created, hash"
	rows, err := s.db.Query(s.d.rebind(query))
	if err != nil {
		return nil, s.d.err(err, "ListPendingInvoices: query")
	}
	defer rows.Close()
	invoices := []lnurl.PendingInvoice{}
	for rows.Next() {
		inv, err := scanPendingInvoice(rows)
		if err != nil {
			return nil, s.d.err(err, "ListPendingInvoices: rows.Scan")
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, s.d.err(err, "ListPendingInvoices: rows.Next")
	}
	return invoices, nil
}

func (s sqlStore) GetUser(username string) (lnurl.User, error) {
	row := s.db.QueryRow(s.d.rebind("SELECT username, mint, pubkey, relays, proxy FROM users WHERE username = ?"), username)
	var u lnurl.User
	var relays string
	err := row.Scan(&u.Username, &u.Mint, &u.Pubkey, &relays, &u.Proxy)
	if err == sql.ErrNoRows {
		return lnurl.User{}, lnurl.NewErr(lnurl.NotFound, "user not found: %v", username)
	}
	if err != nil {
		return lnurl.User{}, s.d.err(err, "GetUser: row.Scan")
	}
	if err := json.Unmarshal([]byte(relays), &u.Relays); err != nil {
		return lnurl.User{}, lnurl.NewErr(lnurl.PersistenceError, "GetUser: bad relays for %s: %v", username, err)
	}
	return u, nil
}

func (s sqlStore) CreateUser(u lnurl.User) error {
	if u.Relays == nil {
		u.Relays = []string{}
	}
	relays, err := json.Marshal(u.Relays)
	if err != nil {
		return lnurl.NewErr(lnurl.BadRequest, "CreateUser: relays: %v", err)
	}
	_, err = s.exec("CreateUser",
		"INSERT INTO users (username, mint, pubkey, relays, proxy) VALUES (?,?,?,?,?)",
		u.Username, u.Mint, u.Pubkey, string(relays), u.Proxy)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPendingInvoice(row scanner) (lnurl.PendingInvoice, error) {
	var inv lnurl.PendingInvoice
	var amount, created int64
	var lastChecked sql.NullInt64
	err := row.Scan(&inv.Hash, &inv.Mint, &inv.Username, &inv.Description, &amount,
		&inv.Bolt11, &lastChecked, &inv.Proxied, &created)
	if err != nil {
		return lnurl.PendingInvoice{}, err
	}
	inv.Amount = uint64(amount)
	inv.Time = time.Unix(created, 0)
	if lastChecked.Valid {
		t := time.Unix(lastChecked.Int64, 0)
		inv.LastChecked = &t
	}
	return inv, nil
}

// numbered rewrites ? placeholders to $1, $2, ...
func numbered(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
