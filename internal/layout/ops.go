package layout

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

type OpKind string

var ErrUnsupportedOp = errors.New("unsupported editor op")

const (
	OpAdd           OpKind = "add"
	OpReorder       OpKind = "reorder"
	OpUpdateContent OpKind = "updateContent"
	OpUpdateStyles  OpKind = "updateStyles"
	OpDelete        OpKind = "delete"
)

// Op is one editor action as submitted by the page builder client.
type Op struct {
	Op     OpKind         `json:"op"`
	Type   Type           `json:"type,omitempty"`
	ID     string         `json:"id,omitempty"`
	From   int            `json:"from,omitempty"`
	To     int            `json:"to,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	Styles *Styles        `json:"styles,omitempty"`
}

// Apply runs ops in sequence and stops at the first failure, leaving the
// editor with the ops before it applied.
func (e *Editor) Apply(ops []Op) error {
	for i, op := range ops {
		if err := e.apply(op); err != nil {
			return fmt.Errorf("op %d (%s): %w", i, op.Op, err)
		}
	}
	return nil
}

func (e *Editor) apply(op Op) error {
	switch op.Op {
	case OpAdd:
		_, err := e.AddBlock(op.Type)
		return err
	case OpReorder:
		return e.Reorder(op.From, op.To)
	case OpUpdateContent:
		return e.UpdateBlockContent(op.ID, op.Data)
	case OpUpdateStyles:
		e.UpdateBlockStyles(op.ID, op.Styles)
		return nil
	case OpDelete:
		e.DeleteBlock(op.ID)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedOp, op.Op)
	}
}

// Sanitize prepares a client-supplied document for storage: blocks are sorted
// by their submitted order, renumbered, and given ids when missing or
// duplicated.
func Sanitize(l Layout) (Layout, error) {
	blocks := make([]Block, len(l.Sections))
	copy(blocks, l.Sections)
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Order < blocks[j].Order
	})

	seen := make(map[string]struct{}, len(blocks))
	for i := range blocks {
		if !blocks[i].Type.Valid() {
			return Layout{}, fmt.Errorf("%w: %q at position %d", ErrUnknownBlockType, blocks[i].Type, i)
		}
		if blocks[i].Data == nil {
			data, err := DefaultData(blocks[i].Type)
			if err != nil {
				return Layout{}, err
			}
			blocks[i].Data = data
		}
		if blocks[i].Data.BlockType() != blocks[i].Type {
			return Layout{}, fmt.Errorf("%w: data does not match type %q", ErrInvalidContent, blocks[i].Type)
		}

		id := strings.TrimSpace(blocks[i].ID)
		if _, dup := seen[id]; id == "" || dup {
			id = uuid.NewString()
		}
		seen[id] = struct{}{}
		blocks[i].ID = id
		blocks[i].Order = i
	}
	return Layout{Sections: blocks}, nil
}
