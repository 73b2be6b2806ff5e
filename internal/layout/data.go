package layout

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Data is the type-specific payload of a block. Implementations are the
// *XxxData structs in this file.
type Data interface {
	BlockType() Type
}

type HeroData struct {
	Title           string `json:"title" yaml:"title"`
	Subtitle        string `json:"subtitle" yaml:"subtitle"`
	BackgroundImage string `json:"backgroundImage" yaml:"backgroundImage"`
	CTAText         string `json:"ctaText" yaml:"ctaText"`
	CTALink         string `json:"ctaLink" yaml:"ctaLink"`
}

type ProductsData struct {
	Title      string `json:"title" yaml:"title"`
	Collection string `json:"collection" yaml:"collection"`
	Limit      int    `json:"limit" yaml:"limit"`
	Layout     string `json:"layout" yaml:"layout"`
}

type CategoriesData struct {
	Title  string `json:"title" yaml:"title"`
	Limit  int    `json:"limit" yaml:"limit"`
	Layout string `json:"layout" yaml:"layout"`
}

type BrandsData struct {
	Title string `json:"title" yaml:"title"`
	Limit int    `json:"limit" yaml:"limit"`
}

type CustomHTMLData struct {
	HTML string `json:"html" yaml:"html"`
}

type TextData struct {
	Heading string `json:"heading" yaml:"heading"`
	Content string `json:"content" yaml:"content"`
}

type ImageData struct {
	Src  string `json:"src" yaml:"src"`
	Alt  string `json:"alt" yaml:"alt"`
	Link string `json:"link" yaml:"link"`
}

type VideoData struct {
	URL      string `json:"url" yaml:"url"`
	Autoplay bool   `json:"autoplay" yaml:"autoplay"`
	Loop     bool   `json:"loop" yaml:"loop"`
}

type Testimonial struct {
	Name   string `json:"name" yaml:"name"`
	Quote  string `json:"quote" yaml:"quote"`
	Rating int    `json:"rating" yaml:"rating"`
}

type TestimonialData struct {
	Title string        `json:"title" yaml:"title"`
	Items []Testimonial `json:"items" yaml:"items"`
}

type Feature struct {
	Icon        string `json:"icon" yaml:"icon"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

type FeatureData struct {
	Title string    `json:"title" yaml:"title"`
	Items []Feature `json:"items" yaml:"items"`
}

type CTAData struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	ButtonText  string `json:"buttonText" yaml:"buttonText"`
	ButtonLink  string `json:"buttonLink" yaml:"buttonLink"`
}

type SpacerData struct {
	Height int `json:"height" yaml:"height"`
}

func (*HeroData) BlockType() Type        { return TypeHero }
func (*ProductsData) BlockType() Type    { return TypeProducts }
func (*CategoriesData) BlockType() Type  { return TypeCategories }
func (*BrandsData) BlockType() Type      { return TypeBrands }
func (*CustomHTMLData) BlockType() Type  { return TypeCustomHTML }
func (*TextData) BlockType() Type        { return TypeText }
func (*ImageData) BlockType() Type       { return TypeImage }
func (*VideoData) BlockType() Type       { return TypeVideo }
func (*TestimonialData) BlockType() Type { return TypeTestimonial }
func (*FeatureData) BlockType() Type     { return TypeFeature }
func (*CTAData) BlockType() Type         { return TypeCTA }
func (*SpacerData) BlockType() Type      { return TypeSpacer }

func newData(t Type) (Data, error) {
	switch t {
	case TypeHero:
		return &HeroData{}, nil
	case TypeProducts:
		return &ProductsData{}, nil
	case TypeCategories:
		return &CategoriesData{}, nil
	case TypeBrands:
		return &BrandsData{}, nil
	case TypeCustomHTML:
		return &CustomHTMLData{}, nil
	case TypeText:
		return &TextData{}, nil
	case TypeImage:
		return &ImageData{}, nil
	case TypeVideo:
		return &VideoData{}, nil
	case TypeTestimonial:
		return &TestimonialData{}, nil
	case TypeFeature:
		return &FeatureData{}, nil
	case TypeCTA:
		return &CTAData{}, nil
	case TypeSpacer:
		return &SpacerData{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlockType, t)
	}
}

func decodeStrict(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// mergeData overlays the top-level keys of partial onto current and decodes
// the result into a fresh value of the same type. Nested values are replaced,
// not merged.
func mergeData(current Data, partial map[string]any) (Data, error) {
	encoded, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("failed to encode block data: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode block data: %w", err)
	}
	for key, value := range partial {
		fields[key] = value
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return decodeData(current.BlockType(), merged, true)
}
