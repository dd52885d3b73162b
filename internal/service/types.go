// Package service holds the file-backed services of a campus data
// directory: the GeoJSON source inventory and the basemap tile store.
package service

// SourceFile describes the GeoJSON source of one registered layer.
type SourceFile struct {
	Layer    string `json:"layer" doc:"Layer the source feeds" example:"main_building"`
	URL      string `json:"url" doc:"Source URL relative to the data root" example:"data/buildings/university/main_building.geojson"`
	Exists   bool   `json:"exists" doc:"Whether the file is present in the data directory"`
	Remote   bool   `json:"remote" doc:"Whether sources are fetched over HTTP"`
	Size     string `json:"size,omitempty" doc:"Human-readable file size" example:"1.2 MB"`
	Bytes    int64  `json:"bytes,omitempty" doc:"File size in bytes"`
	FileType string `json:"fileType" doc:"File type" example:"GeoJSON"`
}

// TileFile summarises the local basemap tiles of one zoom level.
type TileFile struct {
	Zoom  int    `json:"zoom" doc:"Zoom level" example:"16"`
	Count int    `json:"count" doc:"Number of tiles present"`
	Size  string `json:"size" doc:"Human-readable total size" example:"5.4 MB"`
}
