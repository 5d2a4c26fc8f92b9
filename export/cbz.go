package export

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirzenith/galleryvault/galleryerr"
	"github.com/sirzenith/galleryvault/galleryevent"
	"github.com/sirzenith/galleryvault/gallery"
)

// ExportCbz bundles comic's downloaded pages from sourceDir into a single
// store-only CBZ archive under exportDir, preserving the original image
// bytes (spec §4.7, mirroring zip.go's zipWriter.Create without the image
// re-encoding step that zip.go applies for ordinary ebook bundling).
func (e *Exporter) ExportCbz(comic gallery.Comic, sourceDir, exportDir, downloadFormat string) (string, error) {
	id := newExportID()
	e.emitStart(galleryevent.KindStart, id, comic.Title, nil)

	path, err := e.exportCbz(comic, sourceDir, exportDir, downloadFormat)
	if err != nil {
		e.emitStart(galleryevent.KindError, id, comic.Title, err)
		return "", err
	}

	e.emitStart(galleryevent.KindEnd, id, comic.Title, nil)
	return path, nil
}

func (e *Exporter) exportCbz(comic gallery.Comic, sourceDir, exportDir, downloadFormat string) (string, error) {
	pages, err := pageFiles(sourceDir, comic, downloadFormat)
	if err != nil {
		return "", err
	}
	if len(pages) != len(comic.Files) {
		return "", galleryerr.New(galleryerr.KindIO, fmt.Sprintf("resolved page count %d does not match gallery file count %d", len(pages), len(comic.Files)), nil)
	}

	finalPath, err := outputPath(exportDir, comic, ".cbz")
	if err != nil {
		return "", err
	}
	tmpPath := finalPath + ".tmp"

	if err := writeCbzArchive(tmpPath, pages); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to rename %s into place", tmpPath), err)
	}

	return finalPath, nil
}

func writeCbzArchive(tmpPath string, pages []string) error {
	file, err := os.Create(tmpPath)
	if err != nil {
		return galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to create archive %s", tmpPath), err)
	}
	defer file.Close()

	bufWriter := bufio.NewWriter(file)
	zipWriter := zip.NewWriter(bufWriter)

	for _, imgPath := range pages {
		if err := addStoredEntry(zipWriter, imgPath); err != nil {
			zipWriter.Close()
			return err
		}
	}

	if err := zipWriter.Close(); err != nil {
		return galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to finalize archive %s", tmpPath), err)
	}
	if err := bufWriter.Flush(); err != nil {
		return galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to flush archive %s", tmpPath), err)
	}

	return nil
}

// addStoredEntry copies imgPath into the archive uncompressed (Store
// method), since page images are already compressed formats (spec §4.7
// "no re-encoding on CBZ export").
func addStoredEntry(zipWriter *zip.Writer, imgPath string) error {
	src, err := os.Open(imgPath)
	if err != nil {
		return galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to open page image %s", imgPath), err)
	}
	defer src.Close()

	header := &zip.FileHeader{
		Name:   filepath.Base(imgPath),
		Method: zip.Store,
	}

	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to create archive entry for %s", imgPath), err)
	}

	if _, err := io.Copy(writer, src); err != nil {
		return galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to write archive entry for %s", imgPath), err)
	}

	return nil
}
