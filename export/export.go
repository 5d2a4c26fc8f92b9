// Package export implements C7: bundling a completed gallery's downloaded
// page images into a single PDF or CBZ file. The PDF path is grounded on
// the teacher's cmd/bundle/manga_pdf/manga_pdf.go (gopdf, one page per
// image, natural filename order); the CBZ path is grounded on
// cmd/bundle/zip/zip.go (archive/zip, store-only, no re-encoding), adapted
// from "walk an arbitrary image directory" to "walk exactly comic.Files in
// order".
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirzenith/galleryvault/common"
	"github.com/sirzenith/galleryvault/galleryerr"
	"github.com/sirzenith/galleryvault/galleryevent"
	"github.com/sirzenith/galleryvault/gallery"
)

// Exporter publishes Start/End/Error lifecycle events for every export run
// (spec §6 exportPdfEvent/exportCbzEvent) and owns no other state: each
// call is a one-shot operation that runs to completion; it takes no
// context and cannot be cancelled.
type Exporter struct {
	bus *galleryevent.Bus
}

func NewExporter(bus *galleryevent.Bus) *Exporter {
	return &Exporter{bus: bus}
}

// pageFiles returns the absolute paths of comic's page images inside dir,
// in Comic.Files order, failing if any page is missing on disk (spec §4.7
// "export requires every page already downloaded").
func pageFiles(dir string, comic gallery.Comic, downloadFormat string) ([]string, error) {
	paths := make([]string, 0, len(comic.Files))

	for i, file := range comic.Files {
		format, ok := file.PreferredFormat(downloadFormat)
		if !ok {
			return nil, galleryerr.New(galleryerr.KindParse, fmt.Sprintf("file %d of gallery %d advertises no usable format", i, comic.ID), nil)
		}

		basename := gallery.PageBasename(i+1, format)
		path := filepath.Join(dir, basename)

		if _, err := os.Stat(path); err != nil {
			return nil, galleryerr.New(galleryerr.KindIO, fmt.Sprintf("page %s is missing, gallery is not fully downloaded", basename), err)
		}

		paths = append(paths, path)
	}

	return paths, nil
}

// outputPath resolves a ".pdf"/".cbz" destination under exportDir, named
// "{id} {title}" after sanitizing, avoiding a collision with an
// existing file the same way the teacher resolves config.json's path.
func outputPath(exportDir string, comic gallery.Comic, extension string) (string, error) {
	if err := os.MkdirAll(exportDir, 0o777); err != nil {
		return "", galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to create export directory %s", exportDir), err)
	}

	stem := common.SanitizePathComponent(fmt.Sprintf("%d %s", comic.ID, comic.Title))
	path, err := common.FindAvailableFileName(exportDir, stem, extension, 999)
	if err != nil {
		return "", galleryerr.New(galleryerr.KindIO, "failed to find an available export file name", err)
	}
	return path, nil
}

func (e *Exporter) emitStart(kind galleryevent.EventKind, id, title string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	e.bus.PublishExport(galleryevent.ExportEvent{Kind: kind, UUID: id, Title: title, Err: errMsg})
}

func newExportID() string { return uuid.NewString() }
