package lnurl

// Store is the persistent record store shared by the HTTP layer, which
// creates pending invoices, and the forwarder, which consumes them.
// Writes are single-key; there is no multi-key transaction.
type Store interface {
	// GetPendingInvoice returns the record for a payment hash, or a
	// NotFound error.
	GetPendingInvoice(hash string) (PendingInvoice, error)
	// StorePendingInvoice inserts or replaces the record keyed by inv.Hash.
	StorePendingInvoice(inv PendingInvoice) error
	// RemovePendingInvoice deletes the record; removing an absent hash is
	// not an error.
	RemovePendingInvoice(hash string) error
	// ListPendingInvoices returns all records (only proxied ones if asked),
	// oldest first.
	ListPendingInvoices(proxiedOnly bool) ([]PendingInvoice, error)

	// GetUser returns the user, or a NotFound error.
	GetUser(username string) (User, error)
	// CreateUser stores a new user, AlreadyExists if the name is taken.
	CreateUser(user User) error

	Close()
}
