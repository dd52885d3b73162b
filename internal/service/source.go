package service

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joeblew999/plat-campus/internal/registry"
)

// SourceService reports which layer sources are present on disk.
type SourceService struct {
	dataDir string
	remote  bool
	reg     *registry.Registry
}

// NewSourceService creates a source service. remote marks sources that are
// fetched over HTTP rather than read from dataDir.
func NewSourceService(dataDir string, remote bool, reg *registry.Registry) *SourceService {
	return &SourceService{dataDir: dataDir, remote: remote, reg: reg}
}

var extToType = map[string]string{
	".geojson": "GeoJSON",
	".json":    "GeoJSON",
}

// List returns one entry per registered layer in configuration order.
func (s *SourceService) List() []SourceFile {
	layers := s.reg.Layers()
	files := make([]SourceFile, 0, len(layers))
	for _, l := range layers {
		f := SourceFile{
			Layer:    l.Name,
			URL:      l.URL,
			Remote:   s.remote,
			FileType: extToType[strings.ToLower(filepath.Ext(l.URL))],
		}
		if f.FileType == "" {
			f.FileType = "unknown"
		}
		if !s.remote {
			if info, err := os.Stat(s.Path(l.URL)); err == nil && !info.IsDir() {
				f.Exists = true
				f.Bytes = info.Size()
				f.Size = formatSize(info.Size())
			}
		}
		files = append(files, f)
	}
	return files
}

// Path resolves a source URL inside the data directory.
func (s *SourceService) Path(url string) string {
	return filepath.Join(s.dataDir, filepath.FromSlash(url))
}
