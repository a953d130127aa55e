package store

import (
	"sort"
	"sync"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
)

// interface guard ensures Mock implements lnurl.Store
var _ lnurl.Store = &Mock{}

// Mock is an in-memory lnurl.Store for tests.
type Mock struct {
	mu       sync.Mutex
	invoices map[string]lnurl.PendingInvoice
	users    map[string]lnurl.User
}

// NewMock returns a lnurl.Store implementor that stores records in memory
func NewMock() *Mock {
	return &Mock{
		invoices: make(map[string]lnurl.PendingInvoice, 10),
		users:    make(map[string]lnurl.User, 10),
	}
}

func (m *Mock) GetPendingInvoice(hash string) (lnurl.PendingInvoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.invoices[hash]
	if !ok {
		return lnurl.PendingInvoice{}, lnurl.NewErr(lnurl.NotFound, "pending invoice not found: %v", hash)
	}
	return v, nil
}

func (m *Mock) StorePendingInvoice(inv lnurl.PendingInvoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.Hash] = inv
	return nil
}

func (m *Mock) RemovePendingInvoice(hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.invoices, hash)
	return nil
}

func (m *Mock) ListPendingInvoices(proxiedOnly bool) ([]lnurl.PendingInvoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []lnurl.PendingInvoice{}
	for _, inv := range m.invoices {
		if proxiedOnly && !inv.Proxied {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time.Equal(out[j].Time) {
			return out[i].Hash < out[j].Hash
		}
		return out[i].Time.Before(out[j].Time)
	})
	return out, nil
}

func (m *Mock) GetUser(username string) (lnurl.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return lnurl.User{}, lnurl.NewErr(lnurl.NotFound, "user not found: %v", username)
	}
	return u, nil
}

func (m *Mock) CreateUser(u lnurl.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Username]; ok {
		return lnurl.NewErr(lnurl.AlreadyExists, "user already exists: %v", u.Username)
	}
	if u.Relays == nil {
		u.Relays = []string{}
	}
	m.users[u.Username] = u
	return nil
}

func (m *Mock) Close() {}
