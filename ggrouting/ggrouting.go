// Package ggrouting implements C2: the site's runtime image-URL derivation
// algorithm, reproduced from its gg.js endpoint. The line-scanning parser
// below follows the same hand-rolled character-by-character state machine
// style as the teacher's cmd/nhentai/internal/title_parsing.go, adapted
// from "segment a manga title" to "segment a tiny JS snippet into
// assignments and case labels".
package ggrouting

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirzenith/galleryvault/galleryerr"
	"github.com/sirzenith/galleryvault/httpclient"
)

const (
	ggURL   = "https://ltn.gold-usergeneratedcontent.net/gg.js"
	imgHost = "gold-usergeneratedcontent.net"

	cacheTTL = 5 * time.Minute
)

// Table is the (offset, overrides, salt) triple parsed from gg.js (spec §3).
type Table struct {
	DefaultOffset int
	Overrides     map[string]bool // last-3-hex-digits -> override present
	PathSalt      string
}

// Engine owns the cached routing table and reproduces the site's hostname
// selection (spec §4.2). It is read-mostly under a single lock with
// swap-on-reload, matching the Design Notes guidance for the routing cache.
type Engine struct {
	client *httpclient.Client

	mu        sync.RWMutex
	table     *Table
	fetchedAt time.Time

	reloadOnce sync.Mutex // single-flight debounce, see SPEC_FULL "gg.js debounce"
	reloading  bool
	reloadDone chan struct{}
}

func New(client *httpclient.Client) *Engine {
	return &Engine{client: client}
}

// ImageURL derives the full image URL for hash/format, fetching or reusing
// the cached routing table as needed (spec §4.2 step 1-3).
func (e *Engine) ImageURL(ctx context.Context, hash, format string) (string, error) {
	table, err := e.currentTable(ctx)
	if err != nil {
		return "", err
	}
	return deriveURL(table, hash, format)
}

// ReloadRouting forces a refresh of the cached table, single-flighted so
// concurrent 404s around one salt rotation share a single fetch instead of
// thundering-herding gg.js.
func (e *Engine) ReloadRouting(ctx context.Context) error {
	_, err := e.fetchAndCache(ctx)
	return err
}

func (e *Engine) currentTable(ctx context.Context) (*Table, error) {
	e.mu.RLock()
	table := e.table
	fresh := table != nil && time.Since(e.fetchedAt) < cacheTTL
	e.mu.RUnlock()

	if fresh {
		return table, nil
	}

	table, err := e.fetchAndCache(ctx)
	if err != nil {
		e.mu.RLock()
		cached := e.table
		e.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}
	return table, nil
}

// fetchAndCache performs the single-flighted fetch: the first caller does
// the HTTP round trip, later concurrent callers wait on reloadDone and reuse
// its result.
func (e *Engine) fetchAndCache(ctx context.Context) (*Table, error) {
	e.reloadOnce.Lock()
	if e.reloading {
		done := e.reloadDone
		e.reloadOnce.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		e.mu.RLock()
		defer e.mu.RUnlock()
		if e.table == nil {
			return nil, galleryerr.New(galleryerr.KindNetwork, "failed to fetch routing table", nil)
		}
		return e.table, nil
	}

	e.reloading = true
	e.reloadDone = make(chan struct{})
	e.reloadOnce.Unlock()

	table, err := e.fetch(ctx)

	e.reloadOnce.Lock()
	e.reloading = false
	close(e.reloadDone)
	e.reloadOnce.Unlock()

	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.table = table
	e.fetchedAt = time.Now()
	e.mu.Unlock()

	return table, nil
}

func (e *Engine) fetch(ctx context.Context) (*Table, error) {
	resp, err := e.client.Get(ctx, ggURL)
	if err != nil {
		return nil, galleryerr.New(galleryerr.KindNetwork, "failed to fetch gg.js", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil {
			break
		}
	}

	table, err := ParseGGScript(string(buf))
	if err != nil {
		return nil, galleryerr.NewWithExcerpt(galleryerr.KindParse, "failed to parse gg.js", excerpt(string(buf)), err)
	}

	return table, nil
}

func excerpt(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// ParseGGScript scans gg.js's text for the three pieces the derivation
// algorithm needs: `var o = N`, the `b:"..."` path salt, and the set of
// `case N:` labels whose block sets `o = 1`.
//
// The scanner walks the script line by line, classifying each line the same
// way title_parsing.go classifies each rune of a manga title into bracket /
// paren / text segments: a small explicit state kept across the loop
// instead of a regexp engine.
func ParseGGScript(script string) (*Table, error) {
	table := &Table{
		Overrides: map[string]bool{},
	}

	foundOffset := false
	foundSalt := false

	pendingCases := []string{}

	lines := strings.Split(script, "\n")
	for _, rawLine := range lines {
		line := strings.TrimSpace(rawLine)

		if v, ok := matchAssignment(line, "o"); ok && !foundOffset {
			n, err := strconv.Atoi(v)
			if err != nil {
				continue
			}
			table.DefaultOffset = n
			foundOffset = true
			continue
		}

		if v, ok := matchStringAssignment(line, "b"); ok && !foundSalt {
			table.PathSalt = v
			foundSalt = true
			continue
		}

		if labels, ok := matchCaseLabels(line); ok {
			pendingCases = append(pendingCases, labels...)
			continue
		}

		if strings.Contains(line, "o = 1") || strings.Contains(line, "o=1") {
			for _, label := range pendingCases {
				table.Overrides[strings.ToLower(label)] = true
			}
			pendingCases = pendingCases[:0]
		}
	}

	if !foundOffset {
		return nil, fmt.Errorf("no default offset assignment found in gg.js")
	}
	if !foundSalt {
		return nil, fmt.Errorf("no path salt assignment found in gg.js")
	}

	return table, nil
}

// matchAssignment recognizes `var <name> = <int>;` style lines.
func matchAssignment(line, name string) (string, bool) {
	prefixes := []string{"var " + name + " = ", name + " = ", name + "="}
	for _, prefix := range prefixes {
		if strings.HasPrefix(line, prefix) {
			rest := strings.TrimPrefix(line, prefix)
			rest = strings.TrimSuffix(strings.TrimSpace(rest), ";")
			return rest, true
		}
	}
	return "", false
}

// matchStringAssignment recognizes `b: "value"` style lines (object literal
// field assignment used for the path salt).
func matchStringAssignment(line, name string) (string, bool) {
	prefix := name + ":"
	idx := strings.Index(line, prefix)
	if idx < 0 {
		return "", false
	}

	rest := strings.TrimSpace(line[idx+len(prefix):])
	rest = strings.TrimSuffix(rest, ",")
	rest = strings.Trim(rest, `"'`)
	if rest == "" {
		return "", false
	}
	return rest, true
}

// matchCaseLabels recognizes one or more `case 1a2:` labels possibly
// chained on one line (`case 1a2: case 3bf:`).
func matchCaseLabels(line string) ([]string, bool) {
	if !strings.HasPrefix(line, "case ") {
		return nil, false
	}

	labels := []string{}
	parts := strings.Split(line, "case ")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		colon := strings.Index(part, ":")
		if colon < 0 {
			continue
		}
		labels = append(labels, strings.TrimSpace(part[:colon]))
	}

	if len(labels) == 0 {
		return nil, false
	}
	return labels, true
}

// deriveURL implements spec §4.2 step 3 exactly, including the oracle
// scenarios of spec §8.
func deriveURL(table *Table, hash, format string) (string, error) {
	if len(hash) < 3 {
		return "", fmt.Errorf("image hash %q is shorter than 3 hex digits", hash)
	}

	g := strings.ToLower(hash[len(hash)-3:])
	k, err := strconv.ParseInt(g, 16, 64)
	if err != nil {
		return "", fmt.Errorf("invalid hex suffix %q in hash %q: %s", g, hash, err)
	}

	offset := table.DefaultOffset
	if table.Overrides[g] {
		offset = 1 - table.DefaultOffset
	}

	letter := "w"
	if format == "avif" {
		letter = "a"
	}
	subdomain := fmt.Sprintf("%s%d", letter, offset+1)

	path := fmt.Sprintf("%s/%s%d/%s.%s", format, table.PathSalt, k, hash, format)

	return fmt.Sprintf("https://%s.%s/%s", subdomain, imgHost, path), nil
}
