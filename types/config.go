package types

// AppConfig is the upload server configuration loaded from the config file.
type AppConfig struct {
	Listen     string          `yaml:"listen"`
	OnlyLocal  bool            `yaml:"onlyLocal"`
	ReceiptTTL string          `yaml:"receiptTTL"` // e.g. "30m"
	Storage    StorageConfig   `yaml:"storage"`
	Limits     LimitsConfig    `yaml:"limits"`
	Filter     FilterConfig    `yaml:"filter"`
	Compress   bool            `yaml:"compress"` // zstd every stored file
	RateLimit  RateLimitConfig `yaml:"rateLimit"`
}

// StorageConfig selects and configures the storage backend of uploaded files.
type StorageConfig struct {
	Backend string      `yaml:"backend"` // disk | s3 | azure
	Dir     string      `yaml:"dir"`
	S3      S3Config    `yaml:"s3,omitempty"`
	Azure   AzureConfig `yaml:"azure,omitempty"`
}

type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix,omitempty"`
	Region       string `yaml:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	AccessKey    string `yaml:"accessKey,omitempty"`
	SecretKey    string `yaml:"secretKey,omitempty"`
	UsePathStyle bool   `yaml:"usePathStyle,omitempty"`
}

type AzureConfig struct {
	AccountURL       string `yaml:"accountURL,omitempty"`
	ConnectionString string `yaml:"connectionString,omitempty"`
	Container        string `yaml:"container"`
	Prefix           string `yaml:"prefix,omitempty"`
}

// LimitsConfig is the file form of Limits. Sizes accept human readable
// values such as "10MiB" or "512 kB". An empty size or a nil count keeps the
// default; "0" and 0 are real limits.
type LimitsConfig struct {
	MaxFieldNameSize string `yaml:"maxFieldNameSize,omitempty"`
	MaxFieldSize     string `yaml:"maxFieldSize,omitempty"`
	MaxFields        *int64 `yaml:"maxFields,omitempty"`
	MaxFileSize      string `yaml:"maxFileSize,omitempty"`
	MaxFiles         *int64 `yaml:"maxFiles,omitempty"`
	MaxParts         *int64 `yaml:"maxParts,omitempty"`
	MaxHeaderPairs   *int64 `yaml:"maxHeaderPairs,omitempty"`
}

// Count returns a pointer to n for the count fields of LimitsConfig.
func Count(n int64) *int64 { return &n }

type FilterConfig struct {
	AllowedMimeTypes  []string `yaml:"allowedMimeTypes,omitempty"`
	AllowedExtensions []string `yaml:"allowedExtensions,omitempty"`
}

// RateLimitConfig bounds uploads per client address. Zero disables it.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"perSecond"`
	Burst     int     `yaml:"burst"`
}

// Config holds runtime overrides from CLI flags
type Config struct {
	Log           string
	UseConfigPath string
	UseListen     string
	UseStorage    string
	UseUploadDir  string
	UseOnlyLocal  bool
	UseCompress   bool
}
