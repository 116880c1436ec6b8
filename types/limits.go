package types

// Limits bounds what a single multipart body may contain.
// Sizes are in bytes.
type Limits struct {
	MaxFieldNameSize int64 `yaml:"maxFieldNameSize" json:"maxFieldNameSize"`
	MaxFieldSize     int64 `yaml:"maxFieldSize" json:"maxFieldSize"`
	MaxFields        int64 `yaml:"maxFields" json:"maxFields"`
	MaxFileSize      int64 `yaml:"maxFileSize" json:"maxFileSize"`
	MaxFiles         int64 `yaml:"maxFiles" json:"maxFiles"`
	MaxParts         int64 `yaml:"maxParts" json:"maxParts"`
	MaxHeaderPairs   int64 `yaml:"maxHeaderPairs" json:"maxHeaderPairs"`
}

// DefaultLimits returns the limits used for every field the caller leaves unset.
func DefaultLimits() Limits {
	return Limits{
		MaxFieldNameSize: 100,         // 100 bytes
		MaxFieldSize:     1024 * 1024, // 1MB
		MaxFields:        1000,
		MaxFileSize:      10 * 1024 * 1024, // 10MB
		MaxFiles:         10,
		MaxParts:         1000,
		MaxHeaderPairs:   2000,
	}
}

// Merge returns l with every non-zero field of override applied on top.
func (l Limits) Merge(override Limits) Limits {
	if override.MaxFieldNameSize > 0 {
		l.MaxFieldNameSize = override.MaxFieldNameSize
	}
	if override.MaxFieldSize > 0 {
		l.MaxFieldSize = override.MaxFieldSize
	}
	if override.MaxFields > 0 {
		l.MaxFields = override.MaxFields
	}
	if override.MaxFileSize > 0 {
		l.MaxFileSize = override.MaxFileSize
	}
	if override.MaxFiles > 0 {
		l.MaxFiles = override.MaxFiles
	}
	if override.MaxParts > 0 {
		l.MaxParts = override.MaxParts
	}
	if override.MaxHeaderPairs > 0 {
		l.MaxHeaderPairs = override.MaxHeaderPairs
	}
	return l
}
