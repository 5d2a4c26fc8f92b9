// Package galleryfs implements the downloaded-gallery half of C6: no
// queryable database (spec Non-goals) — the "downloaded" listing is always
// derived by walking the download directory and reading each gallery's
// metadata.json sidecar, in the same spirit as the teacher's
// book_management/library_info.go directory bookkeeping, generalized from a
// single flat book list into a recursive scan driven by config.DirFmt.
package galleryfs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirzenith/galleryvault/common"
	"github.com/sirzenith/galleryvault/config"
	"github.com/sirzenith/galleryvault/galleryerr"
	"github.com/sirzenith/galleryvault/gallery"
)

const metadataFileName = "metadata.json"

// ComicDir returns the absolute directory a comic's images and sidecar
// would live in under cfg's download directory.
func ComicDir(cfg config.Config, comic gallery.Comic) string {
	dirName := gallery.RenderDirName(comic, cfg.DirFmt)
	return filepath.Join(cfg.DownloadDir, filepath.FromSlash(dirName))
}

// IsDownloaded reports whether comic's sidecar metadata file already exists
// on disk, and returns the directory it lives in either way.
func IsDownloaded(cfg config.Config, comic gallery.Comic) (bool, string) {
	dir := ComicDir(cfg, comic)
	_, err := os.Stat(filepath.Join(dir, metadataFileName))
	return err == nil, dir
}

// WriteMetadataSidecar writes the original descriptor JSON alongside a
// completed gallery's images (spec §4.5 step "After all files").
func WriteMetadataSidecar(dir string, comic gallery.Comic) error {
	data, err := json.MarshalIndent(comic, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata for gallery %d: %s", comic.ID, err)
	}

	if err := os.MkdirAll(dir, 0o777); err != nil {
		return galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to create gallery directory %s", dir), err)
	}

	path := filepath.Join(dir, metadataFileName)
	if err := common.AtomicWriteFile(path, data, 0o644); err != nil {
		return galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to write metadata sidecar %s", path), err)
	}

	return nil
}

// ReadMetadataSidecar reads and parses one gallery directory's
// metadata.json.
func ReadMetadataSidecar(dir string) (*gallery.Comic, error) {
	path := filepath.Join(dir, metadataFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var comic gallery.Comic
	if err := json.Unmarshal(data, &comic); err != nil {
		return nil, fmt.Errorf("failed to parse metadata sidecar %s: %s", path, err)
	}

	return &comic, nil
}

type scanEntry struct {
	comic   gallery.Comic
	modTime int64
}

// GetDownloadedComics walks cfg.DownloadDir to the depth implied by the
// number of "/" separators in cfg.DirFmt, reads metadata.json from each
// leaf directory, and returns galleries sorted by descending modified time
// (spec §4.6). Directories without a valid sidecar are skipped.
func GetDownloadedComics(cfg config.Config) ([]gallery.Comic, error) {
	maxDepth := strings.Count(cfg.DirFmt, "/") + 1

	entries := []scanEntry{}

	err := filepath.Walk(cfg.DownloadDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal to the whole scan
		}
		if !info.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(cfg.DownloadDir, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}

		depth := strings.Count(filepath.ToSlash(rel), "/") + 1
		if depth < maxDepth {
			return nil // descend further
		}
		if depth > maxDepth {
			return filepath.SkipDir
		}

		comic, readErr := ReadMetadataSidecar(path)
		if readErr != nil {
			return filepath.SkipDir // leaf without valid metadata: skip this branch entirely
		}

		comic.IsDownloaded = true
		comic.ComicDownloadDir = path
		comic.DirName = filepath.ToSlash(rel)

		entries = append(entries, scanEntry{comic: *comic, modTime: info.ModTime().UnixNano()})

		return filepath.SkipDir
	})
	if err != nil {
		return nil, galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to scan download directory %s", cfg.DownloadDir), err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime > entries[j].modTime
	})

	comics := make([]gallery.Comic, 0, len(entries))
	for _, e := range entries {
		comics = append(comics, e.comic)
	}

	return comics, nil
}
