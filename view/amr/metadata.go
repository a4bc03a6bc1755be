// Package amr maps an overlapping-AMR metadata hierarchy onto streamable
// block descriptors.
//
// Blocks are numbered densely in storage order: all of level 0, then all of
// level 1, and so on. The numbering is stable for a given Metadata value.
package amr

import (
	"fmt"

	"github.com/distview/distview/view/geom"
)

// Metadata describes the blocks of an AMR hierarchy: for each level, the
// bounds of each block at that level.
type Metadata struct {
	levels [][]geom.Box
	offset []int // flat index of the first block of each level
}

// NewMetadata builds metadata from per-level block bounds. The slices are
// copied. Returns an error if a level is empty or a block is uninitialized.
func NewMetadata(levels [][]geom.Box) (*Metadata, error) {
	m := &Metadata{
		levels: make([][]geom.Box, len(levels)),
		offset: make([]int, len(levels)),
	}
	flat := 0
	for l, blocks := range levels {
		if len(blocks) == 0 {
			return nil, fmt.Errorf("amr metadata: level %d has no blocks", l)
		}
		for i, b := range blocks {
			if !b.IsValid() {
				return nil, fmt.Errorf("amr metadata: block (%d,%d) has uninitialized bounds", l, i)
			}
		}
		m.levels[l] = append([]geom.Box(nil), blocks...)
		m.offset[l] = flat
		flat += len(blocks)
	}
	return m, nil
}

// MaxUniformBlocks bounds the total block count UniformRefinement accepts.
const MaxUniformBlocks = 1 << 21

// UniformBlockCount returns the total number of blocks UniformRefinement
// would build for levels and ratio. ok is false once the count exceeds
// MaxUniformBlocks.
func UniformBlockCount(levels, ratio int) (total int, ok bool) {
	perLevel := 1
	for l := 0; l < levels; l++ {
		total += perLevel
		if total > MaxUniformBlocks {
			return total, false
		}
		if l+1 < levels {
			for i := 0; i < 3; i++ {
				if perLevel > MaxUniformBlocks/ratio {
					return MaxUniformBlocks + 1, false
				}
				perLevel *= ratio
			}
		}
	}
	return total, true
}

// UniformRefinement builds a hierarchy over domain where level l splits each
// axis into ratio^l equal cells, so level l holds ratio^(3l) blocks.
func UniformRefinement(domain geom.Box, levels, ratio int) (*Metadata, error) {
	if !domain.IsValid() {
		return nil, fmt.Errorf("amr refinement: domain bounds are uninitialized")
	}
	if levels < 1 {
		return nil, fmt.Errorf("amr refinement: levels must be >= 1, got %d", levels)
	}
	if ratio < 2 {
		return nil, fmt.Errorf("amr refinement: ratio must be >= 2, got %d", ratio)
	}
	if _, ok := UniformBlockCount(levels, ratio); !ok {
		return nil, fmt.Errorf("amr refinement: %d levels at ratio %d exceed %d blocks", levels, ratio, MaxUniformBlocks)
	}
	ext := domain.Extent()
	out := make([][]geom.Box, levels)
	cells := 1
	for l := 0; l < levels; l++ {
		dx, dy, dz := ext.X/float64(cells), ext.Y/float64(cells), ext.Z/float64(cells)
		blocks := make([]geom.Box, 0, cells*cells*cells)
		for k := 0; k < cells; k++ {
			for j := 0; j < cells; j++ {
				for i := 0; i < cells; i++ {
					x0 := domain.Min.X + float64(i)*dx
					y0 := domain.Min.Y + float64(j)*dy
					z0 := domain.Min.Z + float64(k)*dz
					blocks = append(blocks, geom.NewBox(x0, x0+dx, y0, y0+dy, z0, z0+dz))
				}
			}
		}
		out[l] = blocks
		cells *= ratio
	}
	return NewMetadata(out)
}

// NumberOfLevels returns the number of refinement levels.
func (m *Metadata) NumberOfLevels() int { return len(m.levels) }

// NumberOfBlocks returns the block count at level, 0 if out of range.
func (m *Metadata) NumberOfBlocks(level int) int {
	if level < 0 || level >= len(m.levels) {
		return 0
	}
	return len(m.levels[level])
}

// TotalBlocks returns the block count over all levels.
func (m *Metadata) TotalBlocks() int {
	if len(m.levels) == 0 {
		return 0
	}
	last := len(m.levels) - 1
	return m.offset[last] + len(m.levels[last])
}

// Bounds returns the bounds of block (level, index).
func (m *Metadata) Bounds(level, index int) (geom.Box, bool) {
	if level < 0 || level >= len(m.levels) || index < 0 || index >= len(m.levels[level]) {
		return geom.EmptyBox(), false
	}
	return m.levels[level][index], true
}

// FlatIndex converts (level, index) into the storage-order flat index.
func (m *Metadata) FlatIndex(level, index int) (int, bool) {
	if _, ok := m.Bounds(level, index); !ok {
		return 0, false
	}
	return m.offset[level] + index, true
}

// IndexPair converts a flat index back into (level, index).
func (m *Metadata) IndexPair(flat int) (level, index int, ok bool) {
	if flat < 0 || flat >= m.TotalBlocks() {
		return 0, 0, false
	}
	for l := len(m.levels) - 1; l >= 0; l-- {
		if flat >= m.offset[l] {
			return l, flat - m.offset[l], true
		}
	}
	return 0, 0, false
}

// Domain returns the union of all block bounds.
func (m *Metadata) Domain() geom.Box {
	d := geom.EmptyBox()
	for _, blocks := range m.levels {
		for _, b := range blocks {
			d = d.Union(b)
		}
	}
	return d
}
