package gallery

import (
	"strconv"
	"strings"

	"github.com/sirzenith/galleryvault/common"
)

// RenderDirName renders dirFmt against comic following the {field}-style
// template grammar of spec §4.6. It is a pure function of (comic, dirFmt),
// as the spec's testable-property §8 requires. The default format carries
// a stable {id} segment so a scan can still locate the directory after
// title collisions (Design Notes); a custom dirFmt without {id} renders
// without it. Segments that render empty are dropped, and if every segment
// is empty the gallery ID alone is used.
func RenderDirName(comic Comic, dirFmt string) string {
	if dirFmt == "" {
		dirFmt = "{id} {title}"
	}

	fields := map[string]string{
		"id":                 strconv.Itoa(comic.ID),
		"title":              comic.Title,
		"type":               comic.Type,
		"artists":            strings.Join(comic.Artists, ", "),
		"language":           comic.Language,
		"language_localname": comic.LanguageLocalName,
	}

	segments := strings.Split(dirFmt, "/")
	rendered := make([]string, 0, len(segments))

	for _, segment := range segments {
		value := substitutePlaceholders(segment, fields)
		if value != "" {
			rendered = append(rendered, common.SanitizePathComponent(value))
		}
	}

	if len(rendered) == 0 {
		rendered = append(rendered, common.SanitizePathComponent(strconv.Itoa(comic.ID)))
	}

	return strings.Join(rendered, "/")
}

// substitutePlaceholders replaces every {field} occurrence in segment with
// its resolved value, leaving unrecognised placeholders untouched.
func substitutePlaceholders(segment string, fields map[string]string) string {
	var b strings.Builder
	i := 0
	for i < len(segment) {
		if segment[i] == '{' {
			end := strings.IndexByte(segment[i:], '}')
			if end >= 0 {
				name := segment[i+1 : i+end]
				if value, ok := fields[name]; ok {
					b.WriteString(value)
					i += end + 1
					continue
				}
			}
		}
		b.WriteByte(segment[i])
		i++
	}
	return b.String()
}
