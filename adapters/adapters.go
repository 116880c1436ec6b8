// Package adapters holds the storage adapters an upload session writes file
// parts to. An adapter instance belongs to one session: Rollback removes
// everything that instance stored.
package adapters

import (
	"errors"
	"sync"
	"time"
)

// ErrRolledBack is returned by ProcessFile when the session was rolled back
// while the file was being stored. The stored artifact has been removed.
var ErrRolledBack = errors.New("adapters: session rolled back while storing file")

// StoredFile describes a file part persisted by Disk, S3 or AzureBlob.
type StoredFile struct {
	ID        string    `json:"id"`
	Field     string    `json:"field"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mimeType"`
	Encoding  string    `json:"encoding"`
	Size      int64     `json:"size"`
	Location  string    `json:"location"`
	Truncated bool      `json:"truncated,omitempty"`
	StoredAt  time.Time `json:"storedAt"`
}

// ledger remembers what an adapter stored so Rollback can undo it. After
// the first drain it refuses new entries.
type ledger struct {
	mu         sync.Mutex
	keys       []string
	rolledBack bool
}

// record adds key, or reports false when the ledger was already drained.
func (l *ledger) record(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rolledBack {
		return false
	}
	l.keys = append(l.keys, key)
	return true
}

// drain hands out every recorded key and closes the ledger.
func (l *ledger) drain() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolledBack = true
	keys := l.keys
	l.keys = nil
	return keys
}
