package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirzenith/galleryvault/common"
	"github.com/sirzenith/galleryvault/galleryerr"
	"github.com/sirzenith/galleryvault/ggrouting"
	"github.com/sirzenith/galleryvault/httpclient"
)

const galleryInfoAssignmentPrefix = "var galleryinfo = "

// Resolver implements C3: it fetches a gallery's JSON descriptor, parses
// and normalizes it, and resolves cover image bytes through the URL
// derivation engine (C2). It is grounded on the teacher's
// cmd/nhentai/internal/nhenapi.NhenClient.GetBook, generalized from a
// single hard-coded endpoint to the engine-wide httpclient.Client and the
// richer Comic shape.
type Resolver struct {
	client *httpclient.Client
	routes *ggrouting.Engine
}

func NewResolver(client *httpclient.Client, routes *ggrouting.Engine) *Resolver {
	return &Resolver{client: client, routes: routes}
}

// descriptorWire matches the site's raw JSON shape before normalization;
// optional strings are coerced to "" and tags are promoted into Tag structs
// by normalize.
type descriptorWire struct {
	ID    int    `json:"id"`
	Title struct {
		English  string `json:"english"`
		Japanese string `json:"japanese"`
		Pretty   string `json:"pretty"`
	} `json:"title"`
	Type              string            `json:"type"`
	Language          string            `json:"language"`
	LanguageLocalName string            `json:"language_localname"`
	Artists           []string          `json:"artists"`
	Groups            []string          `json:"groups"`
	Parodys           []string          `json:"parodys"`
	Characters        []string          `json:"characters"`
	Tags              []Tag             `json:"tags"`
	Files             []File            `json:"files"`
	Date              string            `json:"date"`
	Related           []int             `json:"related"`
	Languages         []LanguageVariant `json:"languages"`
}

// GetComic fetches https://ltn.gold-usergeneratedcontent.net/galleries/{id}.js,
// strips the `var galleryinfo = ` prefix, and parses the remaining JSON
// (spec §4.3).
func (r *Resolver) GetComic(ctx context.Context, id int) (*Comic, error) {
	url := fmt.Sprintf("https://ltn.gold-usergeneratedcontent.net/galleries/%d.js", id)

	resp, err := r.client.Get(ctx, url)
	if err != nil {
		return nil, galleryerr.New(galleryerr.KindNetwork, fmt.Sprintf("failed to fetch gallery %d", id), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return nil, galleryerr.New(galleryerr.KindNotFound, fmt.Sprintf("gallery %d not found", id), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, galleryerr.New(galleryerr.KindNetwork, fmt.Sprintf("failed to read gallery %d body", id), err)
	}

	comic, err := ParseDescriptor(data)
	if err != nil {
		return nil, galleryerr.NewWithExcerpt(galleryerr.KindParse, fmt.Sprintf("failed to parse gallery %d descriptor", id), excerpt(data), err)
	}

	return comic, nil
}

// ParseDescriptor strips the leading assignment and unmarshals+normalizes
// the remaining JSON into a Comic (spec §4.3).
func ParseDescriptor(data []byte) (*Comic, error) {
	text := strings.TrimSpace(string(data))
	text = strings.TrimPrefix(text, galleryInfoAssignmentPrefix)
	text = strings.TrimSuffix(text, ";")

	var wire descriptorWire
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return nil, fmt.Errorf("JSON decode failed: %s", err)
	}

	comic := &Comic{
		ID:                wire.ID,
		Title:             firstNonEmpty(wire.Title.Japanese, wire.Title.English, wire.Title.Pretty),
		Type:              wire.Type,
		Language:          wire.Language,
		LanguageLocalName: wire.LanguageLocalName,
		Artists:           orEmpty(wire.Artists),
		Groups:            orEmpty(wire.Groups),
		Parodys:           orEmpty(wire.Parodys),
		Characters:        orEmpty(wire.Characters),
		Tags:              wire.Tags,
		Files:             wire.Files,
		Date:              wire.Date,
		Related:           wire.Related,
		Languages:         wire.Languages,
	}

	return comic, nil
}

// ValidateFilesDownloadable rejects a descriptor carrying a file with all
// three format flags false, as a fatal ParseError at task-creation time
// (spec §9 open question, resolved in SPEC_FULL).
func ValidateFilesDownloadable(comic *Comic) error {
	for i, f := range comic.Files {
		if !f.HasWebp && !f.HasAvif && !f.HasJxl {
			return galleryerr.New(galleryerr.KindParse, fmt.Sprintf("file %d of gallery %d advertises no usable format", i, comic.ID), nil)
		}
	}
	return nil
}

// CoverBytes fetches the cover image, preferring preferredFormat when the
// cover file advertises it, else the first of {webp, avif, jxl} it does
// advertise (spec §4.3).
func (r *Resolver) CoverBytes(ctx context.Context, comic *Comic, preferredFormat string) ([]byte, error) {
	if len(comic.Files) == 0 {
		return nil, fmt.Errorf("gallery %d has no files", comic.ID)
	}

	cover := comic.Files[0]
	format, ok := cover.PreferredFormat(preferredFormat)
	if !ok {
		return nil, galleryerr.New(galleryerr.KindParse, fmt.Sprintf("cover of gallery %d advertises no usable format", comic.ID), nil)
	}

	imgURL, err := r.routes.ImageURL(ctx, cover.Hash, format)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Get(ctx, imgURL)
	if err != nil {
		return nil, galleryerr.New(galleryerr.KindNetwork, "failed to fetch cover image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 || resp.StatusCode == 403 {
		if reloadErr := r.routes.ReloadRouting(ctx); reloadErr == nil {
			if retryURL, err := r.routes.ImageURL(ctx, cover.Hash, format); err == nil {
				resp2, err := r.client.Get(ctx, retryURL)
				if err == nil {
					defer resp2.Body.Close()
					data, err := io.ReadAll(resp2.Body)
					if err != nil {
						return nil, galleryerr.New(galleryerr.KindNetwork, "failed to read cover image body", err)
					}
					return verifyCoverBytes(data, comic.ID)
				}
			}
		}
		return nil, galleryerr.New(galleryerr.KindNotFound, "cover image not found", nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, galleryerr.New(galleryerr.KindNetwork, "failed to read cover image body", err)
	}
	return verifyCoverBytes(data, comic.ID)
}

// verifyCoverBytes decodes data to confirm the site handed back a
// well-formed raster image before it reaches the GUI's preview pane,
// rather than an HTML error page or truncated body mistaken for success.
func verifyCoverBytes(data []byte, comicID int) ([]byte, error) {
	if _, _, err := common.DecodeImageBytes(data); err != nil {
		return nil, galleryerr.New(galleryerr.KindParse, fmt.Sprintf("cover image for gallery %d is not a valid image", comicID), err)
	}
	return data, nil
}

// SyncDownloadState applies fresh isDownloaded/comicDownloadDir values onto
// a Comic (spec §4.3 "Synced comic"). It does no fetching itself; its
// caller Engine.GetSyncedComic fetches the descriptor again by ID before
// applying it.
func SyncDownloadState(comic Comic, isDownloaded bool, downloadDir string) Comic {
	comic.IsDownloaded = isDownloaded
	comic.ComicDownloadDir = downloadDir
	return comic
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func excerpt(data []byte) string {
	const max = 200
	s := string(data)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
