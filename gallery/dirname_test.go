package gallery

import "testing"

func TestRenderDirNameDefaultFormat(t *testing.T) {
	comic := Comic{ID: 123, Title: "Some Title"}

	got := RenderDirName(comic, "")
	want := "123 Some Title"
	if got != want {
		t.Errorf("RenderDirName = %q, want %q", got, want)
	}
}

func TestRenderDirNameNestedSegments(t *testing.T) {
	comic := Comic{ID: 7, Title: "Doujin", Language: "chinese"}

	got := RenderDirName(comic, "{language}/{id} {title}")
	want := "chinese/7 Doujin"
	if got != want {
		t.Errorf("RenderDirName = %q, want %q", got, want)
	}
}

func TestRenderDirNameSanitizesIllegalCharacters(t *testing.T) {
	comic := Comic{ID: 9, Title: `Who: "What"/<Why>?`}

	got := RenderDirName(comic, "{title}")
	for _, c := range []byte{'<', '>', ':', '"', '/', '\\', '|', '?', '*'} {
		for i := 0; i < len(got); i++ {
			if got[i] == c {
				t.Fatalf("RenderDirName result %q still contains illegal byte %q", got, c)
			}
		}
	}
}

// TestRenderDirNameFallsBackToID covers the property from the spec's
// testable-property list: a format that renders to nothing but separators
// (every placeholder value empty) still produces a non-empty name, falling
// back to the gallery ID.
func TestRenderDirNameFallsBackToID(t *testing.T) {
	comic := Comic{ID: 42}

	got := RenderDirName(comic, "{title}/{artists}")
	want := "42"
	if got != want {
		t.Errorf("RenderDirName = %q, want %q", got, want)
	}
}

func TestRenderDirNameLeavesUnknownPlaceholderLiteral(t *testing.T) {
	comic := Comic{ID: 1, Title: "T"}

	got := RenderDirName(comic, "{nope}-{title}")
	want := "{nope}-T"
	if got != want {
		t.Errorf("RenderDirName = %q, want %q", got, want)
	}
}
