package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/signintech/gopdf"
	"github.com/sirzenith/galleryvault/common"
	"github.com/sirzenith/galleryvault/galleryerr"
	"github.com/sirzenith/galleryvault/galleryevent"
	"github.com/sirzenith/galleryvault/gallery"
)

// ExportPdf bundles comic's downloaded pages from sourceDir into a single
// PDF under exportDir, one page per image at the image's native size
// (spec §4.7, mirroring manga_pdf.go's AddPageWithOption/Image pairing).
func (e *Exporter) ExportPdf(comic gallery.Comic, sourceDir, exportDir, downloadFormat string) (string, error) {
	id := newExportID()
	e.emitStart(galleryevent.KindStart, id, comic.Title, nil)

	path, err := e.exportPdf(comic, sourceDir, exportDir, downloadFormat)
	if err != nil {
		e.emitStart(galleryevent.KindError, id, comic.Title, err)
		return "", err
	}

	e.emitStart(galleryevent.KindEnd, id, comic.Title, nil)
	return path, nil
}

func (e *Exporter) exportPdf(comic gallery.Comic, sourceDir, exportDir, downloadFormat string) (string, error) {
	pages, err := pageFiles(sourceDir, comic, downloadFormat)
	if err != nil {
		return "", err
	}

	finalPath, err := outputPath(exportDir, comic, ".pdf")
	if err != nil {
		return "", err
	}
	tmpPath := finalPath + ".tmp"

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})

	trimBox := &gopdf.Box{}

	rasterDir, err := os.MkdirTemp("", "galleryvault-pdf-*")
	if err != nil {
		os.Remove(tmpPath)
		return "", galleryerr.New(galleryerr.KindIO, "failed to create staging directory for PDF export", err)
	}
	defer os.RemoveAll(rasterDir)

	for i, imgPath := range pages {
		// gopdf's ImageObj only understands raster formats it decodes
		// itself (jpeg/png/...), not the site's native webp/avif pages, so
		// every page is re-rasterised to PNG before it is embedded.
		pngPath, err := rasterizeToPNG(rasterDir, i, imgPath)
		if err != nil {
			os.Remove(tmpPath)
			return "", err
		}

		imgObj := new(gopdf.ImageObj)
		if err := imgObj.SetImagePath(pngPath); err != nil {
			os.Remove(tmpPath)
			return "", galleryerr.New(galleryerr.KindParse, fmt.Sprintf("failed to load page image %s", imgPath), err)
		}

		pdf.AddPageWithOption(gopdf.PageOption{
			TrimBox:  trimBox,
			PageSize: imgObj.GetRect(),
		})

		if err := pdf.Image(pngPath, 0, 0, imgObj.GetRect()); err != nil {
			os.Remove(tmpPath)
			return "", galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to place page image %s", imgPath), err)
		}
	}

	if err := pdf.WritePdf(tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to write PDF %s", tmpPath), err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to rename %s into place", tmpPath), err)
	}

	return finalPath, nil
}

// rasterizeToPNG decodes imgPath with the decoders registered against the
// image package (webp and avif among them) and writes it back out as a PNG
// inside stagingDir, returning the new path. No jxl decoder is registered,
// so a jxl page fails here with a parse error.
func rasterizeToPNG(stagingDir string, ordinal int, imgPath string) (string, error) {
	src, err := os.Open(imgPath)
	if err != nil {
		return "", galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to open page image %s", imgPath), err)
	}
	defer src.Close()

	outPath := filepath.Join(stagingDir, fmt.Sprintf("%03d.png", ordinal))
	out, err := os.Create(outPath)
	if err != nil {
		return "", galleryerr.New(galleryerr.KindIO, fmt.Sprintf("failed to create staging file for %s", imgPath), err)
	}
	defer out.Close()

	if _, err := common.ConvertImageTo(src, out, common.ImageFormatPng); err != nil {
		return "", galleryerr.New(galleryerr.KindParse, fmt.Sprintf("failed to rasterise page image %s", imgPath), err)
	}

	return outPath, nil
}
