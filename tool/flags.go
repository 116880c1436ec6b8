package tool

import (
	"github.com/spf13/pflag"

	"github.com/moyoez/multiparter/types"
)

// BindFlags registers the CLI overrides on fs and returns the struct they
// are parsed into.
func BindFlags(fs *pflag.FlagSet) *types.Config {
	var cfg types.Config
	fs.StringVar(&cfg.Log, "log", "", "log mode: dev|prod|none")
	fs.StringVar(&cfg.UseConfigPath, "config", "", "override config file path")
	fs.StringVar(&cfg.UseListen, "listen", "", "override listen address, e.g. :8080")
	fs.StringVar(&cfg.UseStorage, "storage", "", "override storage backend: disk|s3|azure")
	fs.StringVar(&cfg.UseUploadDir, "upload-dir", "", "override upload folder of the disk backend")
	fs.BoolVar(&cfg.UseOnlyLocal, "only-local", false, "only accept requests from loopback addresses")
	fs.BoolVar(&cfg.UseCompress, "compress", false, "zstd compress every stored file")
	return &cfg
}
