package layout

import (
	"fmt"

	"github.com/google/uuid"
)

// Editor applies authoring operations to an in-memory layout. Nothing is
// persisted until the caller saves Layout().
//
// Blocks are treated as values: edits replace a block's Data or Styles
// pointer instead of mutating it, so layouts returned earlier stay intact.
type Editor struct {
	blocks []Block
	newID  func() string
}

func NewEditor(l Layout) *Editor {
	blocks := make([]Block, len(l.Sections))
	copy(blocks, l.Sections)
	e := &Editor{blocks: blocks, newID: uuid.NewString}
	e.normalize()
	return e
}

func (e *Editor) Layout() Layout {
	blocks := make([]Block, len(e.blocks))
	copy(blocks, e.blocks)
	return Layout{Sections: blocks}
}

func (e *Editor) Len() int {
	return len(e.blocks)
}

// AddBlock appends a block of type t populated with its default payload.
func (e *Editor) AddBlock(t Type) (Block, error) {
	data, err := DefaultData(t)
	if err != nil {
		return Block{}, err
	}
	block := Block{
		ID:    e.newID(),
		Type:  t,
		Order: len(e.blocks),
		Data:  data,
	}
	e.blocks = append(e.blocks, block)
	return block, nil
}

// Reorder moves the block at from to position to. Blocks outside the moved
// range keep their relative order.
func (e *Editor) Reorder(from, to int) error {
	n := len(e.blocks)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: from=%d to=%d len=%d", ErrIndexOutOfRange, from, to, n)
	}
	if from == to {
		return nil
	}

	moved := e.blocks[from]
	if from < to {
		copy(e.blocks[from:to], e.blocks[from+1:to+1])
	} else {
		copy(e.blocks[to+1:from+1], e.blocks[to:from])
	}
	e.blocks[to] = moved
	e.normalize()
	return nil
}

// UpdateBlockContent shallow-merges partial into the block's data. An unknown
// id is a no-op.
func (e *Editor) UpdateBlockContent(id string, partial map[string]any) error {
	i := e.indexOf(id)
	if i < 0 {
		return nil
	}
	merged, err := mergeData(e.blocks[i].Data, partial)
	if err != nil {
		return err
	}
	e.blocks[i].Data = merged
	return nil
}

// UpdateBlockStyles replaces the block's styles wholesale. An unknown id is a
// no-op.
func (e *Editor) UpdateBlockStyles(id string, styles *Styles) {
	i := e.indexOf(id)
	if i < 0 {
		return
	}
	if styles == nil {
		e.blocks[i].Styles = nil
		return
	}
	replaced := *styles
	e.blocks[i].Styles = &replaced
}

// DeleteBlock removes the block and reports whether it existed.
func (e *Editor) DeleteBlock(id string) bool {
	i := e.indexOf(id)
	if i < 0 {
		return false
	}
	e.blocks = append(e.blocks[:i], e.blocks[i+1:]...)
	e.normalize()
	return true
}

func (e *Editor) indexOf(id string) int {
	for i := range e.blocks {
		if e.blocks[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Editor) normalize() {
	for i := range e.blocks {
		e.blocks[i].Order = i
	}
}
