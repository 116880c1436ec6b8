package multiparter

import (
	"github.com/charmbracelet/log"
	"github.com/moyoez/multiparter/tool"
	"github.com/moyoez/multiparter/types"
)

type config struct {
	id          string
	limits      types.Limits
	filter      FileFilter
	transformer FileTransformer
	logger      *log.Logger
}

// Option configures a Session.
type Option func(*config)

// WithLimits overrides the non-zero fields of the current limits. Use
// WithExactLimits or the single limit options to set a limit to zero.
func WithLimits(l types.Limits) Option {
	return func(c *config) { c.limits = c.limits.Merge(l) }
}

// WithExactLimits replaces every limit with l, zeros included.
func WithExactLimits(l types.Limits) Option {
	return func(c *config) { c.limits = l }
}

// WithMaxFieldNameSize sets the longest accepted field name in bytes.
func WithMaxFieldNameSize(n int64) Option {
	return func(c *config) { c.limits.MaxFieldNameSize = n }
}

// WithMaxFieldSize sets the size at which field values are truncated.
func WithMaxFieldSize(n int64) Option {
	return func(c *config) { c.limits.MaxFieldSize = n }
}

// WithMaxFields sets the number of fields accepted. Zero rejects any field.
func WithMaxFields(n int64) Option {
	return func(c *config) { c.limits.MaxFields = n }
}

// WithMaxFileSize sets the size at which file streams are truncated.
func WithMaxFileSize(n int64) Option {
	return func(c *config) { c.limits.MaxFileSize = n }
}

// WithMaxFiles sets the number of files accepted. Zero rejects any file.
func WithMaxFiles(n int64) Option {
	return func(c *config) { c.limits.MaxFiles = n }
}

// WithMaxParts sets the number of parts accepted.
func WithMaxParts(n int64) Option {
	return func(c *config) { c.limits.MaxParts = n }
}

// WithMaxHeaderPairs sets the number of header pairs a part may carry.
func WithMaxHeaderPairs(n int64) Option {
	return func(c *config) { c.limits.MaxHeaderPairs = n }
}

// WithFilter sets the filter every file part passes before it is stored.
func WithFilter(f FileFilter) Option {
	return func(c *config) { c.filter = f }
}

// WithTransformer sets the transformer applied to accepted file parts.
func WithTransformer(t FileTransformer) Option {
	return func(c *config) { c.transformer = t }
}

// WithLogger replaces tool.DefaultLogger for the session.
func WithLogger(l *log.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithID sets the session id used in logs. A random id is generated otherwise.
func WithID(id string) Option {
	return func(c *config) { c.id = id }
}

func newConfig(opts []Option) *config {
	c := &config{limits: types.DefaultLimits()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.logger == nil {
		c.logger = tool.DefaultLogger
	}
	if c.id == "" {
		c.id = tool.GenerateRandomUUID()
	}
	return c
}
