package tool

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/moyoez/multiparter/types"
)

var ConfigPath = "config.yaml" // be aware that it can be changed, default to ./config.yaml

func defaultConfig() types.AppConfig {
	return types.AppConfig{
		Listen:     ":8080",
		OnlyLocal:  false,
		ReceiptTTL: "30m",
		Storage: types.StorageConfig{
			Backend: "disk",
			Dir:     "uploads",
		},
		Limits: types.LimitsConfig{
			MaxFieldNameSize: "100 B",
			MaxFieldSize:     "1 MiB",
			MaxFields:        types.Count(1000),
			MaxFileSize:      "10 MiB",
			MaxFiles:         types.Count(10),
			MaxParts:         types.Count(1000),
			MaxHeaderPairs:   types.Count(2000),
		},
		RateLimit: types.RateLimitConfig{
			PerSecond: 5,
			Burst:     10,
		},
	}
}

// LoadConfig reads the yaml config at path over the defaults. A missing file
// is created with the default values.
func LoadConfig(path string) (types.AppConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	cfg := defaultConfig()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := writeDefaultConfig(path, cfg); writeErr != nil {
				return cfg, fmt.Errorf("config file not found, and failed to generate default config: %v", writeErr)
			}
			DefaultLogger.Infof("Created new config file at %s", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if info.IsDir() {
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %v", err)
	}
	if _, err := ParseLimits(cfg.Limits); err != nil {
		return cfg, fmt.Errorf("invalid limits in %s: %w", path, err)
	}
	if _, err := ParseReceiptTTL(cfg.ReceiptTTL); err != nil {
		return cfg, fmt.Errorf("invalid receiptTTL in %s: %w", path, err)
	}

	return cfg, nil
}

func writeDefaultConfig(path string, cfg types.AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyFlags copies the CLI overrides that were set onto cfg.
func ApplyFlags(cfg *types.AppConfig, flags types.Config) {
	if flags.UseListen != "" {
		cfg.Listen = flags.UseListen
	}
	if flags.UseStorage != "" {
		cfg.Storage.Backend = flags.UseStorage
	}
	if flags.UseUploadDir != "" {
		cfg.Storage.Dir = flags.UseUploadDir
	}
	if flags.UseOnlyLocal {
		cfg.OnlyLocal = true
	}
	if flags.UseCompress {
		cfg.Compress = true
	}
}

// LimitError names the limit a config value was rejected for.
type LimitError struct {
	Limit string
	Err   error
}

func (e *LimitError) Error() string { return e.Limit + ": " + e.Err.Error() }

func (e *LimitError) Unwrap() error { return e.Err }

// ParseLimits resolves the config form of the limits over the defaults.
// Values that are set win, zeros included.
func ParseLimits(c types.LimitsConfig) (types.Limits, error) {
	l := types.DefaultLimits()
	for _, size := range []struct {
		name string
		v    string
		dst  *int64
	}{
		{"maxFieldNameSize", c.MaxFieldNameSize, &l.MaxFieldNameSize},
		{"maxFieldSize", c.MaxFieldSize, &l.MaxFieldSize},
		{"maxFileSize", c.MaxFileSize, &l.MaxFileSize},
	} {
		if size.v == "" {
			continue
		}
		n, err := humanize.ParseBytes(size.v)
		if err != nil {
			return l, &LimitError{Limit: size.name, Err: err}
		}
		*size.dst = int64(n)
	}
	for _, count := range []struct {
		name string
		v    *int64
		dst  *int64
	}{
		{"maxFields", c.MaxFields, &l.MaxFields},
		{"maxFiles", c.MaxFiles, &l.MaxFiles},
		{"maxParts", c.MaxParts, &l.MaxParts},
		{"maxHeaderPairs", c.MaxHeaderPairs, &l.MaxHeaderPairs},
	} {
		if count.v == nil {
			continue
		}
		if *count.v < 0 {
			return l, &LimitError{Limit: count.name, Err: errors.New("must not be negative")}
		}
		*count.dst = *count.v
	}
	return l, nil
}

// ParseReceiptTTL parses the receipt lifetime, 30 minutes when unset.
func ParseReceiptTTL(v string) (time.Duration, error) {
	if v == "" {
		return 30 * time.Minute, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("receiptTTL must be positive")
	}
	return d, nil
}

// FormatLimits renders limits for the startup log.
func FormatLimits(l types.Limits) string {
	return fmt.Sprintf("field name %s, field %s, file %s, fields %d, files %d, parts %d, header pairs %d",
		humanize.IBytes(uint64(l.MaxFieldNameSize)),
		humanize.IBytes(uint64(l.MaxFieldSize)),
		humanize.IBytes(uint64(l.MaxFileSize)),
		l.MaxFields, l.MaxFiles, l.MaxParts, l.MaxHeaderPairs)
}
