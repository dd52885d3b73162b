package service

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-campus/internal/metrics"
	"github.com/joeblew999/plat-campus/internal/registry"
)

// TileService serves basemap tiles from the data directory and redirects
// to the public tile server for tiles that are not present locally.
type TileService struct {
	tilesDir string
	fallback string
	log      *zap.Logger
}

// NewTileService creates a tile service over <dataDir>/tiles/base.
func NewTileService(dataDir string, cfg registry.TileConfig, log *zap.Logger) *TileService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TileService{
		tilesDir: filepath.Join(dataDir, "tiles", "base"),
		fallback: cfg.FallbackURL,
		log:      log,
	}
}

// ServeHTTP serves /{z}/{x}/{y}.png relative to the mount point.
func (s *TileService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	z, x, y, ok := parseTilePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	local := filepath.Join(s.tilesDir, strconv.Itoa(z), strconv.Itoa(x), strconv.Itoa(y)+".png")
	if info, err := os.Stat(local); err == nil && !info.IsDir() {
		http.ServeFile(w, r, local)
		return
	}

	if s.fallback == "" {
		http.NotFound(w, r)
		return
	}
	metrics.TileFallbacksTotal.Inc()
	s.log.Debug("tile fallback", zap.Int("z", z), zap.Int("x", x), zap.Int("y", y))
	http.Redirect(w, r, s.FallbackURL(z, x, y), http.StatusFound)
}

// FallbackURL expands the public tile template for one tile.
func (s *TileService) FallbackURL(z, x, y int) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	).Replace(s.fallback)
}

func parseTilePath(p string) (z, x, y int, ok bool) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) != 3 || !strings.HasSuffix(parts[2], ".png") {
		return 0, 0, 0, false
	}
	parts[2] = strings.TrimSuffix(parts[2], ".png")
	var n [3]int
	for i, s := range parts {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return 0, 0, 0, false
		}
		n[i] = v
	}
	if n[0] > 22 || n[1] >= 1<<n[0] || n[2] >= 1<<n[0] {
		return 0, 0, 0, false
	}
	return n[0], n[1], n[2], true
}

// List summarises the local tiles per zoom level.
func (s *TileService) List() ([]TileFile, error) {
	entries, err := os.ReadDir(s.tilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TileFile{}, nil
		}
		return nil, err
	}

	files := []TileFile{}
	for _, entry := range entries {
		z, err := strconv.Atoi(entry.Name())
		if !entry.IsDir() || err != nil {
			continue
		}
		var count int
		var size int64
		filepath.WalkDir(filepath.Join(s.tilesDir, entry.Name()), func(_ string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || filepath.Ext(d.Name()) != ".png" {
				return nil
			}
			if info, err := d.Info(); err == nil {
				count++
				size += info.Size()
			}
			return nil
		})
		files = append(files, TileFile{Zoom: z, Count: count, Size: formatSize(size)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Zoom < files[j].Zoom })
	return files, nil
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
