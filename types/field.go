package types

// Field is a plain text part of a multipart form.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	// ValueTruncated is set when the decoder cut Value at the field size limit.
	ValueTruncated bool `json:"valueTruncated,omitempty"`
}
