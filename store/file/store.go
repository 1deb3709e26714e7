// Package file is a durable Store: the memory store plus a JSON snapshot
// rewritten after every mutation. It backs the simulated mode when no
// database is configured.
//
// Several processes may open the same path. Each mutation holds an exclusive
// lock on "<path>.lock", reloads the snapshot, applies the change and writes
// it back; reads hold a shared lock and reload when the file changed.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"

	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/store"
	"github.com/xraph/paylink/store/memory"
	"github.com/xraph/paylink/types"
)

var _ store.Store = (*Store)(nil)

// DefaultPath is where the snapshot lives when no path is configured.
const DefaultPath = ".paylink/ledger.json"

// Store persists a memory.Store to a JSON file. A mutation whose snapshot
// cannot be written is rolled back and reported as an error.
type Store struct {
	*memory.Store

	path   string
	logger *slog.Logger
	write  func(path string, data []byte) error

	mu     sync.Mutex
	flock  *flock.Flock
	loaded os.FileInfo // snapshot file as of the last load or write
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open loads the snapshot at path, or starts empty if the file does not exist.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("paylink/file: create directory: %w", err)
	}
	s := &Store{
		Store:  memory.New(),
		path:   path,
		logger: slog.Default(),
		write:  writeAtomic,
		flock:  flock.New(path + ".lock"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the snapshot location.
func (s *Store) Path() string { return s.path }

// Migrate writes the current state, creating the file if needed.
func (s *Store) Migrate(_ context.Context) error {
	return s.mutate(func() error { return nil })
}

// Close releases the lock file and closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.flock.Close(), s.Store.Close())
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

func (s *Store) GetInvoice(ctx context.Context, invID invoice.ID) (*invoice.Invoice, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}
	return s.Store.GetInvoice(ctx, invID)
}

func (s *Store) ListInvoices(ctx context.Context, merchant common.Address, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}
	return s.Store.ListInvoices(ctx, merchant, opts)
}

func (s *Store) GetBalance(ctx context.Context, key balance.Key) (types.Amount, error) {
	if err := s.refresh(); err != nil {
		return types.Zero, err
	}
	return s.Store.GetBalance(ctx, key)
}

func (s *Store) ListWithdrawals(ctx context.Context, merchant common.Address, opts balance.ListOpts) ([]*balance.Withdrawal, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}
	return s.Store.ListWithdrawals(ctx, merchant, opts)
}

// ──────────────────────────────────────────────────
// Mutations
// ──────────────────────────────────────────────────

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	return s.mutate(func() error { return s.Store.CreateInvoice(ctx, inv) })
}

func (s *Store) SettleInvoice(ctx context.Context, st invoice.Settlement) (*invoice.Invoice, error) {
	var settled *invoice.Invoice
	err := s.mutate(func() error {
		var err error
		settled, err = s.Store.SettleInvoice(ctx, st)
		return err
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

func (s *Store) Withdraw(ctx context.Context, w *balance.Withdrawal) error {
	return s.mutate(func() error { return s.Store.Withdraw(ctx, w) })
}

// mutate reloads the snapshot under the exclusive lock, applies fn and
// persists the result. If the snapshot cannot be written the reloaded state
// is restored.
func (s *Store) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flock.Lock(); err != nil {
		return fmt.Errorf("paylink/file: lock %s: %w", s.path, err)
	}
	defer s.flock.Unlock() //nolint:errcheck // released on close as well

	if err := s.load(true); err != nil {
		return err
	}
	before := s.Snapshot()
	if err := fn(); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		s.Restore(before)
		s.logger.Error("paylink/file: persist failed, mutation rolled back",
			"path", s.path,
			"error", err,
		)
		return err
	}
	return nil
}

// refresh reloads the snapshot under the shared lock if another writer
// replaced it since the last load.
func (s *Store) refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flock.RLock(); err != nil {
		return fmt.Errorf("paylink/file: lock %s: %w", s.path, err)
	}
	defer s.flock.Unlock() //nolint:errcheck // released on close as well

	return s.load(false)
}

// load reads the snapshot file into the memory store. Unless force is set,
// an unchanged file is not decoded again. A missing file leaves the
// in-memory state as is.
func (s *Store) load(force bool) error {
	fi, err := os.Stat(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("paylink/file: stat %s: %w", s.path, err)
	}
	if !force && unchanged(s.loaded, fi) {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("paylink/file: read %s: %w", s.path, err)
	}
	var snap memory.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("paylink/file: decode %s: %w", s.path, err)
	}
	s.Restore(&snap)
	s.loaded = fi
	s.logger.Debug("paylink/file: loaded snapshot",
		"path", s.path,
		"invoices", len(snap.Invoices),
		"withdrawals", len(snap.Withdrawals),
	)
	return nil
}

func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("paylink/file: encode snapshot: %w", err)
	}
	if err := s.write(s.path, data); err != nil {
		return fmt.Errorf("paylink/file: write %s: %w", s.path, err)
	}
	s.loaded, _ = os.Stat(s.path) //nolint:errcheck // nil forces the next read to reload
	return nil
}

// unchanged reports whether cur is the same file, unmodified, as prev.
// Every write renames a fresh file into place, so a replaced snapshot has a
// new identity.
func unchanged(prev, cur os.FileInfo) bool {
	return prev != nil &&
		os.SameFile(prev, cur) &&
		prev.Size() == cur.Size() &&
		prev.ModTime().Equal(cur.ModTime())
}

// writeAtomic writes data to a temp file beside path and renames it over path.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error wins
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // sync error wins
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
