package amr

import (
	"github.com/distview/distview/view/streaming"
)

// Catalog is the flat, identifier-addressed view of a Metadata hierarchy.
// It reads but does not own the metadata; the metadata must not change while
// the catalog is in use.
type Catalog struct {
	meta *Metadata
}

// NewCatalog wraps meta. Panics if meta is nil.
func NewCatalog(meta *Metadata) *Catalog {
	if meta == nil {
		panic("amr.NewCatalog: metadata must not be nil")
	}
	return &Catalog{meta: meta}
}

// Metadata returns the referenced hierarchy.
func (c *Catalog) Metadata() *Metadata { return c.meta }

// Len returns the number of blocks.
func (c *Catalog) Len() int { return c.meta.TotalBlocks() }

// Descriptors lists every block in identifier order (0..N-1).
func (c *Catalog) Descriptors() []streaming.Descriptor {
	out := make([]streaming.Descriptor, 0, c.Len())
	for level := 0; level < c.meta.NumberOfLevels(); level++ {
		for index := 0; index < c.meta.NumberOfBlocks(level); index++ {
			b, _ := c.meta.Bounds(level, index)
			out = append(out, streaming.Descriptor{
				ID:         uint32(len(out)),
				Bounds:     b,
				Refinement: level,
			})
		}
	}
	return out
}

// IndexPair maps an identifier back to its (level, index).
func (c *Catalog) IndexPair(id uint32) (level, index int, ok bool) {
	return c.meta.IndexPair(int(id))
}
