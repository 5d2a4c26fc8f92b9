// Package gallery implements C3: gallery descriptor resolution. The record
// types below replace the teacher's single-site nhenapi.Book (see
// cmd/nhentai/internal/nhenapi/book.go) with the richer Comic shape spec §3
// calls for — ordered tag/artist/group/parody/character lists, per-file
// format flags, related galleries and language siblings.
package gallery

import "fmt"

// Tag is one tag entry with the site's male/female attribution flags.
type Tag struct {
	Name   string `json:"name"`
	Male   int    `json:"male"`
	Female int    `json:"female"`
}

// File describes one page image.
type File struct {
	Hash    string `json:"hash"`
	Name    string `json:"name"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	HasAvif bool   `json:"hasavif"`
	HasWebp bool   `json:"haswebp"`
	HasJxl  bool   `json:"hasjxl"`
}

// LanguageVariant is one sibling gallery available in another language.
type LanguageVariant struct {
	GalleryID          int    `json:"galleryid"`
	Language           string `json:"language"`
	LanguageLocalName  string `json:"language_localname"`
}

// Comic is the normalized, enriched gallery descriptor (spec §3).
type Comic struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Type     string `json:"type"`

	Language          string `json:"language"`
	LanguageLocalName string `json:"language_localname"`

	Artists    []string `json:"artists"`
	Groups     []string `json:"groups"`
	Parodys    []string `json:"parodys"`
	Characters []string `json:"characters"`

	Tags  []Tag  `json:"tags"`
	Files []File `json:"files"`

	Date string `json:"date"`

	Related   []int             `json:"related"`
	Languages []LanguageVariant `json:"languages"`

	// Derived fields, populated by the filesystem layer (C6), not by the
	// descriptor fetch itself.
	DirName          string `json:"dirName"`
	IsDownloaded     bool   `json:"isDownloaded"`
	ComicDownloadDir string `json:"comicDownloadDir"`
}

// PreferredFormat picks the download format for a file following spec
// §4.5 step 4: the configured format if the file advertises it, else
// fallback order webp, avif, jxl.
func (f *File) PreferredFormat(configured string) (string, bool) {
	advertises := map[string]bool{
		"webp": f.HasWebp,
		"avif": f.HasAvif,
		"jxl":  f.HasJxl,
	}

	if advertises[configured] {
		return configured, true
	}

	for _, fallback := range []string{"webp", "avif", "jxl"} {
		if advertises[fallback] {
			return fallback, true
		}
	}

	return "", false
}

// PageBasename returns the {NNN}.{ext} filename for the file at 1-based
// ordinal position in Comic.Files, using format (spec §4.5 "Page file
// name").
func PageBasename(ordinal int, format string) string {
	return fmt.Sprintf("%03d", ordinal) + "." + format
}
