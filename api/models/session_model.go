package models

import (
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"
)

// InFlightTTL bounds how long an unfinished upload stays cancellable.
var InFlightTTL = time.Hour

var (
	inFlightMu sync.RWMutex
	inFlight   = ttlworker.NewCache[string, func()](InFlightTTL)
)

// RegisterUploadSession makes a running upload cancellable by id.
func RegisterUploadSession(sessionId string, abort func()) {
	inFlightMu.Lock()
	defer inFlightMu.Unlock()
	inFlight.Set(sessionId, abort)
}

// CancelUploadSession aborts the running upload with sessionId. It reports
// false when no such upload is running.
func CancelUploadSession(sessionId string) bool {
	inFlightMu.Lock()
	abort := inFlight.Get(sessionId)
	if abort != nil {
		inFlight.Delete(sessionId)
	}
	inFlightMu.Unlock()

	if abort == nil {
		return false
	}
	abort()
	return true
}

// RemoveUploadSession forgets a finished upload.
func RemoveUploadSession(sessionId string) {
	inFlightMu.Lock()
	defer inFlightMu.Unlock()
	inFlight.Delete(sessionId)
}

// IsUploadSessionRunning reports whether sessionId is registered.
func IsUploadSessionRunning(sessionId string) bool {
	inFlightMu.RLock()
	defer inFlightMu.RUnlock()
	return inFlight.Get(sessionId) != nil
}
