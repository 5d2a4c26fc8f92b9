package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirzenith/galleryvault/galleryerr"
	"github.com/sirzenith/galleryvault/httpclient"
)

const (
	siteHost           = "ltn.gold-usergeneratedcontent.net"
	nodeHeaderCap      = 464 // spec §4.4 step 1: greedy first read before extending
	nodeHeaderExtended = 16384
)

// Index is a reader for one B-tree root (e.g. "tagindex/global" or
// "galleriesindex"). Its version is fetched once under a lock and cached
// for the Index's lifetime, so every node and posting read of this root
// uses the same index version (spec §5); the reads themselves are not
// serialized.
type Index struct {
	client *httpclient.Client
	root   string

	mu      sync.Mutex
	version string
	// epochFunc isolates the one spot that would otherwise call time.Now
	// directly, so callers in tests can supply a fixed clock.
	epochFunc func() int64
}

func NewIndex(client *httpclient.Client, root string) *Index {
	return &Index{
		client:    client,
		root:      root,
		epochFunc: func() int64 { return time.Now().Unix() },
	}
}

// Version fetches (and caches for the lifetime of this Index) the current
// version tag for this root (spec §4.4 "Version discovery").
func (idx *Index) Version(ctx context.Context) (string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.version != "" {
		return idx.version, nil
	}

	url := fmt.Sprintf("https://%s/%s/version?_=%d", siteHost, idx.root, idx.epochFunc())
	resp, err := idx.client.Get(ctx, url)
	if err != nil {
		return "", galleryerr.New(galleryerr.KindNetwork, fmt.Sprintf("failed to fetch version for %s", idx.root), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", galleryerr.New(galleryerr.KindNetwork, fmt.Sprintf("failed to read version body for %s", idx.root), err)
	}

	idx.version = trimVersion(data)
	return idx.version, nil
}

func trimVersion(data []byte) string {
	s := string(data)
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\n' || s[start] == '\r' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\n' || s[end-1] == '\r' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

func (idx *Index) indexFileURL(ctx context.Context, ext string) (string, error) {
	version, err := idx.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s/%s/%s.%s.%s", siteHost, idx.root, rootFileStem(idx.root), version, ext), nil
}

// rootFileStem derives the index file's basename stem from the root path
// (the last "/" segment, e.g. "tagindex/global" -> "global").
func rootFileStem(root string) string {
	for i := len(root) - 1; i >= 0; i-- {
		if root[i] == '/' {
			return root[i+1:]
		}
	}
	return root
}

func (idx *Index) readRange(ctx context.Context, url string, offset int64, length int64) ([]byte, error) {
	resp, err := idx.client.GetRange(ctx, url, offset, length)
	if err != nil {
		return nil, galleryerr.New(galleryerr.KindNetwork, fmt.Sprintf("range read of %s failed", url), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, galleryerr.New(galleryerr.KindNetwork, fmt.Sprintf("failed to read range body of %s", url), err)
	}
	return data, nil
}

// readNode reads the node at byte offset, greedily reading nodeHeaderCap
// bytes first and extending to nodeHeaderExtended if that was not enough
// to decode every key (spec §4.4 step 1).
func (idx *Index) readNode(ctx context.Context, indexURL string, offset uint64) (*TagNode, error) {
	data, err := idx.readRange(ctx, indexURL, int64(offset), nodeHeaderCap)
	if err != nil {
		return nil, err
	}

	node, err := DecodeTagNode(data)
	if err != nil {
		data, err = idx.readRange(ctx, indexURL, int64(offset), nodeHeaderExtended)
		if err != nil {
			return nil, err
		}
		node, err = DecodeTagNode(data)
		if err != nil {
			return nil, galleryerr.NewWithExcerpt(galleryerr.KindParse, "failed to decode B-tree node", excerptBytes(data), err)
		}
	}

	return node, nil
}

// Lookup binary-searches the B-tree for term's posting list (spec §4.4
// steps 2-4). A miss contributes the empty posting, matching "on miss, the
// term contributes the empty posting."
func (idx *Index) Lookup(ctx context.Context, term string) ([]int, error) {
	indexURL, err := idx.indexFileURL(ctx, "index")
	if err != nil {
		return nil, err
	}
	dataURL, err := idx.indexFileURL(ctx, "data")
	if err != nil {
		return nil, err
	}

	key := lookupKey(term)

	offset := uint64(0)
	for {
		node, err := idx.readNode(ctx, indexURL, offset)
		if err != nil {
			return nil, err
		}

		match, childIdx, ok := node.Find(key)
		if ok {
			return idx.readPosting(ctx, dataURL, match.postingOffset, match.postingLength)
		}

		if node.IsLeaf() || childIdx >= len(node.children) || node.children[childIdx] == 0 {
			return []int{}, nil
		}
		offset = node.children[childIdx]
	}
}

func (idx *Index) readPosting(ctx context.Context, dataURL string, offset uint64, length uint32) ([]int, error) {
	data, err := idx.readRange(ctx, dataURL, int64(offset), int64(length))
	if err != nil {
		return nil, err
	}

	ids, err := DecodePosting(data)
	if err != nil {
		return nil, galleryerr.NewWithExcerpt(galleryerr.KindParse, "failed to decode posting list", excerptBytes(data), err)
	}

	return ids, nil
}

// lookupKey computes sha256(term)[:4], the key format the B-tree is keyed
// on (spec §4.4 step 2, oracle scenario #4).
func lookupKey(term string) []byte {
	sum := sha256.Sum256([]byte(term))
	return sum[:4]
}

// Suggestion is one entry returned by getSearchSuggestions.
type Suggestion struct {
	Text      string
	Namespace string
	Count     int
}

// WalkPrefix performs an in-order walk of the index's leaves, collecting
// every key whose raw bytes start with prefix, up to limit matches.
//
// Unlike Lookup, which compares sha256(term)[:4] hashes (spec §4.4 step 2,
// oracle #4), suggestion keys are not hashed: hashing destroys the
// lexicographic ordering a prefix search needs. WalkPrefix therefore
// compares prefix against each key's raw bytes (see DESIGN.md); the B-tree
// decode/traversal machinery is otherwise identical to Lookup's.
func (idx *Index) WalkPrefix(ctx context.Context, prefix string, limit int) ([]Suggestion, error) {
	indexURL, err := idx.indexFileURL(ctx, "index")
	if err != nil {
		return nil, err
	}
	dataURL, err := idx.indexFileURL(ctx, "data")
	if err != nil {
		return nil, err
	}

	results := []Suggestion{}
	prefixBytes := []byte(prefix)

	var walk func(offset uint64) error
	walk = func(offset uint64) error {
		if len(results) >= limit {
			return nil
		}

		node, err := idx.readNode(ctx, indexURL, offset)
		if err != nil {
			return err
		}

		for i, k := range node.keys {
			if len(results) >= limit {
				return nil
			}

			if !node.IsLeaf() && i < len(node.children) && node.children[i] != 0 {
				if err := walk(node.children[i]); err != nil {
					return err
				}
			}

			if hasPrefix(k.bytes, prefixBytes) {
				ids, err := idx.readPosting(ctx, dataURL, k.postingOffset, k.postingLength)
				if err != nil {
					return err
				}
				results = append(results, Suggestion{
					Text:      string(k.bytes),
					Namespace: rootFileStem(idx.root),
					Count:     len(ids),
				})
			}
		}

		if !node.IsLeaf() && len(node.children) > len(node.keys) && node.children[len(node.keys)] != 0 {
			if err := walk(node.children[len(node.keys)]); err != nil {
				return err
			}
		}

		return nil
	}

	if err := walk(0); err != nil {
		return nil, err
	}

	return results, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(prefix) > len(b) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func excerptBytes(data []byte) string {
	const max = 64
	if len(data) <= max {
		return fmt.Sprintf("%x", data)
	}
	return fmt.Sprintf("%x...", data[:max])
}
