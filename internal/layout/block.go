// Package layout models a tenant homepage as an ordered list of typed blocks.
package layout

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Type string

const (
	TypeHero        Type = "hero"
	TypeProducts    Type = "products"
	TypeCategories  Type = "categories"
	TypeBrands      Type = "brands"
	TypeCustomHTML  Type = "customHtml"
	TypeText        Type = "text"
	TypeImage       Type = "image"
	TypeVideo       Type = "video"
	TypeTestimonial Type = "testimonial"
	TypeFeature     Type = "feature"
	TypeCTA         Type = "cta"
	TypeSpacer      Type = "spacer"
)

// Types lists every supported block type in palette order.
var Types = []Type{
	TypeHero,
	TypeProducts,
	TypeCategories,
	TypeBrands,
	TypeCustomHTML,
	TypeText,
	TypeImage,
	TypeVideo,
	TypeTestimonial,
	TypeFeature,
	TypeCTA,
	TypeSpacer,
}

var (
	ErrUnknownBlockType = errors.New("unknown block type")
	ErrIndexOutOfRange  = errors.New("block index out of range")
	ErrInvalidContent   = errors.New("invalid block content")
)

func (t Type) Valid() bool {
	_, err := newData(t)
	return err == nil
}

// Layout is the persisted homepage document.
type Layout struct {
	Sections []Block `json:"sections"`
}

// Empty returns the document served when a tenant has never saved a layout.
func Empty() Layout {
	return Layout{Sections: []Block{}}
}

type Block struct {
	ID     string  `json:"id"`
	Type   Type    `json:"type"`
	Order  int     `json:"order"`
	Styles *Styles `json:"styles,omitempty"`
	Data   Data    `json:"data"`
}

type Styles struct {
	Width           string   `json:"width,omitempty"`
	Height          string   `json:"height,omitempty"`
	Padding         *Spacing `json:"padding,omitempty"`
	Margin          *Spacing `json:"margin,omitempty"`
	BackgroundColor string   `json:"backgroundColor,omitempty"`
	TextAlign       string   `json:"textAlign,omitempty"`
}

type Spacing struct {
	Top    string `json:"top,omitempty"`
	Right  string `json:"right,omitempty"`
	Bottom string `json:"bottom,omitempty"`
	Left   string `json:"left,omitempty"`
}

func (b *Block) UnmarshalJSON(raw []byte) error {
	var aux struct {
		ID     string          `json:"id"`
		Type   Type            `json:"type"`
		Order  int             `json:"order"`
		Styles *Styles         `json:"styles"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return err
	}

	var data Data
	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		defaults, err := DefaultData(aux.Type)
		if err != nil {
			return err
		}
		data = defaults
	} else {
		decoded, err := decodeData(aux.Type, aux.Data, false)
		if err != nil {
			return err
		}
		data = decoded
	}

	*b = Block{
		ID:     aux.ID,
		Type:   aux.Type,
		Order:  aux.Order,
		Styles: aux.Styles,
		Data:   data,
	}
	return nil
}

func decodeData(t Type, raw []byte, strict bool) (Data, error) {
	data, err := newData(t)
	if err != nil {
		return nil, err
	}
	if strict {
		if err := decodeStrict(raw, data); err != nil {
			return nil, fmt.Errorf("%w for %s block: %v", ErrInvalidContent, t, err)
		}
		return data, nil
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("%w for %s block: %v", ErrInvalidContent, t, err)
	}
	return data, nil
}
