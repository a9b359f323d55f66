package chunk

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
)

// HashText returns the deterministic content digest used for deduplication
// and as the chunk's stable downstream identifier.
func HashText(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Deduper tracks content hashes seen during one output file's processing
// run. It is not safe for concurrent use; the pipeline gives each worker
// its own instance.
type Deduper struct {
	seen map[string]struct{}
}

func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// Seed registers previously seen hashes, typically loaded from a checkpoint
// file, so a resumed run does not re-emit chunks already written.
func (d *Deduper) Seed(hashes []string) {
	for _, h := range hashes {
		if h != "" {
			d.seen[h] = struct{}{}
		}
	}
}

// Check hashes text and registers the hash. It reports the hash and whether
// the text was already seen; duplicates are dropped silently by callers,
// never reported as errors.
func (d *Deduper) Check(text string) (hash string, duplicate bool) {
	hash = HashText(text)
	if _, ok := d.seen[hash]; ok {
		return hash, true
	}
	d.seen[hash] = struct{}{}
	return hash, false
}

// Hashes returns the seen set in sorted order for checkpoint persistence.
func (d *Deduper) Hashes() []string {
	out := make([]string, 0, len(d.seen))
	for h := range d.seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func (d *Deduper) Len() int {
	return len(d.seen)
}
