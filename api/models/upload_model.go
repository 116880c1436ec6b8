package models

import (
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"
	"github.com/moyoez/multiparter/adapters"
	"github.com/moyoez/multiparter/types"
)

// UploadReceipt is what the server remembers about a finished upload.
type UploadReceipt struct {
	ID         string                `json:"id"`
	RemoteAddr string                `json:"remoteAddr"`
	ReceivedAt time.Time             `json:"receivedAt"`
	Fields     []types.Field         `json:"fields"`
	Files      []adapters.StoredFile `json:"files"`
}

var (
	receiptMu sync.RWMutex
	receipts  = ttlworker.NewCache[string, *UploadReceipt](30 * time.Minute)
)

// SetReceiptTTL replaces the receipt cache with one using ttl. Stored
// receipts are dropped.
func SetReceiptTTL(ttl time.Duration) {
	receiptMu.Lock()
	defer receiptMu.Unlock()
	receipts = ttlworker.NewCache[string, *UploadReceipt](ttl)
}

func StoreReceipt(r *UploadReceipt) {
	receiptMu.Lock()
	defer receiptMu.Unlock()
	receipts.Set(r.ID, r)
}

func LookupReceipt(id string) (*UploadReceipt, bool) {
	receiptMu.RLock()
	defer receiptMu.RUnlock()
	r := receipts.Get(id)
	return r, r != nil
}
