package types

// Notification types broadcast to websocket clients.
const (
	NotifyUploadStart  = "upload_start"
	NotifyUploadEnd    = "upload_end"
	NotifyUploadFailed = "upload_failed"
	NotifyUploadCancel = "upload_cancel"
)

// Notification represents a notification message structure
type Notification struct {
	Type    string         `json:"type,omitempty"`    // one of the Notify* types
	Title   string         `json:"title,omitempty"`   // Notification title
	Message string         `json:"message,omitempty"` // Notification message/content
	Data    map[string]any `json:"data,omitempty"`    // Additional data fields
}
