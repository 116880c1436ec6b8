// Package filters provides FileFilter implementations.
package filters

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/moyoez/multiparter/multiparter"
	"github.com/moyoez/multiparter/types"
)

// AllowMimeTypes accepts parts whose mime type is in mimeTypes. An entry like
// "image/*" matches a whole top level type. An empty list accepts everything.
func AllowMimeTypes(mimeTypes ...string) multiparter.FileFilter {
	allowed := make(map[string]struct{}, len(mimeTypes))
	var prefixes []string
	for _, t := range mimeTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if strings.HasSuffix(t, "/*") {
			prefixes = append(prefixes, strings.TrimSuffix(t, "*"))
			continue
		}
		allowed[t] = struct{}{}
	}
	return func(_ context.Context, f *types.File) (bool, error) {
		if len(mimeTypes) == 0 {
			return true, nil
		}
		mt := strings.ToLower(f.MimeType)
		if _, ok := allowed[mt]; ok {
			return true, nil
		}
		for _, p := range prefixes {
			if strings.HasPrefix(mt, p) {
				return true, nil
			}
		}
		return false, nil
	}
}

// AllowExtensions accepts parts whose file name ends in one of exts,
// compared without case. Entries may omit the leading dot.
func AllowExtensions(exts ...string) multiparter.FileFilter {
	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[e] = struct{}{}
	}
	return func(_ context.Context, f *types.File) (bool, error) {
		if len(exts) == 0 {
			return true, nil
		}
		_, ok := allowed[strings.ToLower(filepath.Ext(f.Filename))]
		return ok, nil
	}
}

// All accepts a part only when every filter does. It stops at the first
// filter that declines or fails.
func All(fs ...multiparter.FileFilter) multiparter.FileFilter {
	return func(ctx context.Context, f *types.File) (bool, error) {
		for _, filter := range fs {
			if filter == nil {
				continue
			}
			ok, err := filter(ctx, f)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}
