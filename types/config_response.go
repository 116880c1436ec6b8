package types

// ConfigResponse is the JSON shape for GET /api/v1/config. Credentials are
// never included.
type ConfigResponse struct {
	Listen    string          `json:"listen"`
	OnlyLocal bool            `json:"only_local"`
	Backend   string          `json:"backend"`
	Location  string          `json:"location"` // dir, bucket or container
	Limits    Limits          `json:"limits"`
	Filter    FilterConfig    `json:"filter"`
	Compress  bool            `json:"compress"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}
