package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	ErrUnknownBlockType = errors.New("unknown block type")
	ErrUnknownField     = errors.New("field not supported by block type")
	ErrInvalidValue     = errors.New("invalid field value")
)

type BlockType string

const (
	BlockHero           BlockType = "HERO"
	BlockFeatures       BlockType = "FEATURES"
	BlockTestimonials   BlockType = "TESTIMONIALS"
	BlockPricing        BlockType = "PRICING"
	BlockProductGallery BlockType = "PRODUCT_GALLERY"
	BlockCTA            BlockType = "CTA"
	BlockFooter         BlockType = "FOOTER"
	BlockTrustBadges    BlockType = "TRUST_BADGES"
	BlockUrgencyTimer   BlockType = "URGENCY_TIMER"
	BlockReviews        BlockType = "REVIEWS"
	BlockBundle         BlockType = "BUNDLE"
	BlockSocialProof    BlockType = "SOCIAL_PROOF"
)

// BlockTypes lists every block type in declaration order.
var BlockTypes = []BlockType{
	BlockHero, BlockFeatures, BlockTestimonials, BlockPricing,
	BlockProductGallery, BlockCTA, BlockFooter, BlockTrustBadges,
	BlockUrgencyTimer, BlockReviews, BlockBundle, BlockSocialProof,
}

// ParseBlockType accepts a type tag in any case, with surrounding spaces.
func ParseBlockType(s string) (BlockType, bool) {
	t := BlockType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := contentTypes[t]; !ok {
		return "", false
	}
	return t, true
}

func (t BlockType) Valid() bool {
	_, ok := contentTypes[t]
	return ok
}

// Content is the type-specific payload of a block. Each BlockType has
// exactly one Content implementation.
type Content interface {
	BlockType() BlockType
	clone() Content
}

// Copy holds the text fields every block carries.
type Copy struct {
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle"`
	ButtonText string `json:"buttonText"`
}

type HeroContent struct {
	Copy
	Description string `json:"description,omitempty"`
}

type FeaturesContent struct {
	Copy
	Items []string `json:"items,omitempty"`
}

type TestimonialsContent struct {
	Copy
	Items []string `json:"items,omitempty"`
}

type PricingContent struct {
	Copy
	Items       []string `json:"items,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ProductGalleryContent lists product handles to feature.
type ProductGalleryContent struct {
	Copy
	Items []string `json:"items,omitempty"`
}

type CTAContent struct {
	Copy
	Description string `json:"description,omitempty"`
}

type FooterContent struct {
	Copy
	Items       []string `json:"items,omitempty"`
	Description string   `json:"description,omitempty"`
}

type TrustBadgesContent struct {
	Copy
	Items []string `json:"items,omitempty"`
}

type UrgencyTimerContent struct {
	Copy
	Description string `json:"description,omitempty"`
}

type ReviewsContent struct {
	Copy
	Items []string `json:"items,omitempty"`
}

// BundleContent lists the product handles sold together.
type BundleContent struct {
	Copy
	Items       []string `json:"items,omitempty"`
	Description string   `json:"description,omitempty"`
}

type SocialProofContent struct {
	Copy
	Items       []string `json:"items,omitempty"`
	Description string   `json:"description,omitempty"`
}

func (HeroContent) BlockType() BlockType           { return BlockHero }
func (FeaturesContent) BlockType() BlockType       { return BlockFeatures }
func (TestimonialsContent) BlockType() BlockType   { return BlockTestimonials }
func (PricingContent) BlockType() BlockType        { return BlockPricing }
func (ProductGalleryContent) BlockType() BlockType { return BlockProductGallery }
func (CTAContent) BlockType() BlockType            { return BlockCTA }
func (FooterContent) BlockType() BlockType         { return BlockFooter }
func (TrustBadgesContent) BlockType() BlockType    { return BlockTrustBadges }
func (UrgencyTimerContent) BlockType() BlockType   { return BlockUrgencyTimer }
func (ReviewsContent) BlockType() BlockType        { return BlockReviews }
func (BundleContent) BlockType() BlockType         { return BlockBundle }
func (SocialProofContent) BlockType() BlockType    { return BlockSocialProof }

func (c *HeroContent) clone() Content { out := *c; return &out }
func (c *FeaturesContent) clone() Content {
	out := *c
	out.Items = cloneItems(c.Items)
	return &out
}
func (c *TestimonialsContent) clone() Content {
	out := *c
	out.Items = cloneItems(c.Items)
	return &out
}
func (c *PricingContent) clone() Content {
	out := *c
	out.Items = cloneItems(c.Items)
	return &out
}
func (c *ProductGalleryContent) clone() Content {
	out := *c
	out.Items = cloneItems(c.Items)
	return &out
}
func (c *CTAContent) clone() Content { out := *c; return &out }
func (c *FooterContent) clone() Content {
	out := *c
	out.Items = cloneItems(c.Items)
	return &out
}
func (c *TrustBadgesContent) clone() Content {
	out := *c
	out.Items = cloneItems(c.Items)
	return &out
}
func (c *UrgencyTimerContent) clone() Content { out := *c; return &out }
func (c *ReviewsContent) clone() Content {
	out := *c
	out.Items = cloneItems(c.Items)
	return &out
}
func (c *BundleContent) clone() Content {
	out := *c
	out.Items = cloneItems(c.Items)
	return &out
}
func (c *SocialProofContent) clone() Content {
	out := *c
	out.Items = cloneItems(c.Items)
	return &out
}

func cloneItems(items []string) []string {
	if items == nil {
		return nil
	}
	return append([]string(nil), items...)
}

// contentTypes maps each block type to the struct type of its content.
var contentTypes = map[BlockType]reflect.Type{
	BlockHero:           reflect.TypeOf(HeroContent{}),
	BlockFeatures:       reflect.TypeOf(FeaturesContent{}),
	BlockTestimonials:   reflect.TypeOf(TestimonialsContent{}),
	BlockPricing:        reflect.TypeOf(PricingContent{}),
	BlockProductGallery: reflect.TypeOf(ProductGalleryContent{}),
	BlockCTA:            reflect.TypeOf(CTAContent{}),
	BlockFooter:         reflect.TypeOf(FooterContent{}),
	BlockTrustBadges:    reflect.TypeOf(TrustBadgesContent{}),
	BlockUrgencyTimer:   reflect.TypeOf(UrgencyTimerContent{}),
	BlockReviews:        reflect.TypeOf(ReviewsContent{}),
	BlockBundle:         reflect.TypeOf(BundleContent{}),
	BlockSocialProof:    reflect.TypeOf(SocialProofContent{}),
}

// contentFields holds the JSON field names each block type accepts.
var contentFields = map[BlockType][]string{}

func init() {
	for t, rt := range contentTypes {
		contentFields[t] = jsonFields(rt)
	}
}

func jsonFields(rt reflect.Type) []string {
	var fields []string
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if f.Anonymous {
			fields = append(fields, jsonFields(f.Type)...)
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name != "" && name != "-" {
			fields = append(fields, name)
		}
	}
	return fields
}

// Fields returns the content field names a block type carries.
func Fields(t BlockType) []string {
	return append([]string(nil), contentFields[t]...)
}

// NewContent returns an empty content value for t.
func NewContent(t BlockType) (Content, error) {
	rt, ok := contentTypes[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlockType, t)
	}
	return reflect.New(rt).Interface().(Content), nil
}

// DefaultContent is what a freshly added block starts with.
func DefaultContent(t BlockType) (Content, error) {
	c, err := NewContent(t)
	if err != nil {
		return nil, err
	}
	return SetField(c, "buttonText", "Buy Now")
}

// DecodeContent reads raw JSON into the content variant for t. Fields the
// variant does not carry are ignored.
func DecodeContent(t BlockType, raw []byte) (Content, error) {
	c, err := NewContent(t)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return c, nil
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("failed to decode %s content: %w", t, err)
	}
	return c, nil
}

// SetField returns a copy of c with field replaced by value. Text fields take
// a string, items takes a list of strings.
func SetField(c Content, field string, value any) (Content, error) {
	t := c.BlockType()
	if !hasField(t, field) {
		return nil, fmt.Errorf("%w: %s has no %q", ErrUnknownField, t, field)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode content: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}
	fields[field] = value

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	out, err := NewContent(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(merged, out); err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidValue, t, field, err)
	}
	return out, nil
}

func hasField(t BlockType, field string) bool {
	for _, f := range contentFields[t] {
		if f == field {
			return true
		}
	}
	return false
}

// CopyOf returns the shared text fields of any content variant.
func CopyOf(c Content) Copy {
	if c == nil {
		return Copy{}
	}
	v := reflect.Indirect(reflect.ValueOf(c))
	return v.FieldByName("Copy").Interface().(Copy)
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      string          `json:"id"`
		Type    string          `json:"type"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, ok := ParseBlockType(raw.Type)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBlockType, raw.Type)
	}
	c, err := DecodeContent(t, raw.Content)
	if err != nil {
		return err
	}
	b.ID = raw.ID
	b.Type = t
	b.Content = c
	return nil
}
