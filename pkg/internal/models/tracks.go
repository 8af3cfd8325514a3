package models

// Track is the normalized projection of one catalog track that the music
// proxy returns, regardless of how the upstream payload is shaped.
type Track struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	AlbumArt   string `json:"album_art"`
	DurationMs int    `json:"duration_ms"`
	PreviewURL string `json:"preview_url"`
}
