// Package checkpoint persists the Lightning node pay-index the gateway
// has processed up to, so the invoice stream resumes where it left off
// after a restart.
package checkpoint

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// size of the on-disk record: one native-endian uint64.
const size = 8

// interface guard ensures File implements lnurl.Checkpointer
var _ lnurl.Checkpointer = File{}

type File struct {
	Path string
}

func NewFile(path string) File {
	return File{Path: path}
}

// DefaultPath is <data-dir>/cln-zapper/last_pay_index
func DefaultPath() (string, error) {
	dir, err := lnurl.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, lnurl.PayIndexDir, lnurl.PayIndexFile), nil
}

// Read returns the stored pay-index. A missing file is a NotFound error,
// a truncated one a PersistenceError.
func (f File) Read() (uint64, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, lnurl.NewErr(lnurl.NotFound, "no checkpoint at %s", f.Path)
		}
		return 0, lnurl.NewErr(lnurl.PersistenceError, "open checkpoint: %v", err)
	}
	defer file.Close()
	var buf [size]byte
	if _, err := io.ReadFull(file, buf[:]); err != nil {
		return 0, lnurl.NewErr(lnurl.PersistenceError, "read checkpoint %s: %v", f.Path, err)
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}

// Write stores the pay-index, creating the parent directory if needed.
func (f File) Write(lastPayIndex uint64) error {
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return lnurl.NewErr(lnurl.PersistenceError, "create checkpoint dir: %v", err)
		}
	}
	var buf [size]byte
	binary.NativeEndian.PutUint64(buf[:], lastPayIndex)
	if err := os.WriteFile(f.Path, buf[:], 0o644); err != nil {
		return lnurl.NewErr(lnurl.PersistenceError, "write checkpoint %s: %v", f.Path, err)
	}
	return nil
}

// Load reads the checkpoint, treating any failure as "start from zero".
// Zero is written back straight away so a missing or corrupt file heals
// itself instead of failing on every start.
func Load(cp lnurl.Checkpointer) uint64 {
	idx, err := cp.Read()
	if err == nil {
		return idx
	}
	log.Warnf("Checkpoint: could not read last pay index: %v", err)
	if err := cp.Write(0); err != nil {
		log.Warnf("Checkpoint: write error: %v", errors.Wrap(err, "resetting pay index"))
	}
	return 0
}
