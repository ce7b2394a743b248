// Package subject appends a short random correlation tag to message subjects.
package subject

import (
	"strings"

	"github.com/valyala/fastrand"
)

// TagLength is the number of characters in a generated tag.
const TagLength = 5

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Source yields uniformly distributed integers in [0, n).
type Source interface {
	Uint32n(n uint32) uint32
}

type globalSource struct{}

func (globalSource) Uint32n(n uint32) uint32 { return fastrand.Uint32n(n) }

// Tagger generates correlation tags. The zero value uses the process-wide
// fastrand generator. Tags are not suitable for anything security related.
type Tagger struct {
	Source Source
}

// NewID returns a fresh TagLength-character alphanumeric tag.
func (t Tagger) NewID() string {
	src := t.Source
	if src == nil {
		src = globalSource{}
	}

	var b strings.Builder
	b.Grow(TagLength)
	for range TagLength {
		b.WriteByte(alphabet[src.Uint32n(uint32(len(alphabet)))])
	}
	return b.String()
}

// Tag returns subject followed by a space and a freshly generated tag, along
// with the tag itself.
func (t Tagger) Tag(subject string) (tagged, id string) {
	id = t.NewID()
	return subject + " " + id, id
}

// Tag appends a fresh tag to subject using the default Tagger.
func Tag(subject string) string {
	tagged, _ := Tagger{}.Tag(subject)
	return tagged
}
