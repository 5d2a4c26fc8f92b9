package ggrouting

import "testing"

const ggScriptFixture = `
var o = 0;
function switchFunc(g) {
	switch (g) {
		case abc:
			o = 1;
			break;
		default:
			o = 0;
	}
}
b:"1728345600/",
`

func TestParseGGScript(t *testing.T) {
	table, err := ParseGGScript(ggScriptFixture)
	if err != nil {
		t.Fatalf("ParseGGScript failed: %s", err)
	}

	if table.DefaultOffset != 0 {
		t.Errorf("DefaultOffset = %d, want 0", table.DefaultOffset)
	}
	if table.PathSalt != "1728345600/" {
		t.Errorf("PathSalt = %q, want %q", table.PathSalt, "1728345600/")
	}
	if !table.Overrides["abc"] {
		t.Errorf("expected override for key \"abc\"")
	}
}

func TestDeriveURL(t *testing.T) {
	table := &Table{
		DefaultOffset: 0,
		Overrides:     map[string]bool{"abc": true},
		PathSalt:      "1728345600/",
	}

	cases := []struct {
		hash   string
		format string
		want   string
	}{
		{"deadbeefabc", "webp", "https://w2.gold-usergeneratedcontent.net/webp/1728345600/2748/deadbeefabc.webp"},
		{"deadbeef123", "webp", "https://w1.gold-usergeneratedcontent.net/webp/1728345600/291/deadbeef123.webp"},
		{"deadbeef123", "avif", "https://a1.gold-usergeneratedcontent.net/avif/1728345600/291/deadbeef123.avif"},
	}

	for _, c := range cases {
		got, err := deriveURL(table, c.hash, c.format)
		if err != nil {
			t.Fatalf("deriveURL(%q, %q) failed: %s", c.hash, c.format, err)
		}
		if got != c.want {
			t.Errorf("deriveURL(%q, %q) = %q, want %q", c.hash, c.format, got, c.want)
		}
	}
}

func TestDeriveURLShortHash(t *testing.T) {
	table := &Table{Overrides: map[string]bool{}}
	if _, err := deriveURL(table, "ab", "webp"); err == nil {
		t.Fatalf("expected error for hash shorter than 3 hex digits")
	}
}
