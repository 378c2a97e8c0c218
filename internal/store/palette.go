package store

import (
	"strings"

	"github.com/google/uuid"
)

// PaletteEntry is one block type as offered by the editor.
type PaletteEntry struct {
	Type  BlockType `json:"type"`
	Label string    `json:"label"`
}

// Palette lists the block types users can add by hand, in menu order.
// FOOTER is not offered; it only appears in generated layouts.
var Palette = []PaletteEntry{
	{BlockHero, "Hero Section"},
	{BlockFeatures, "Features Grid"},
	{BlockTestimonials, "Testimonials"},
	{BlockPricing, "Pricing Table"},
	{BlockProductGallery, "Product Gallery"},
	{BlockBundle, "Product Bundle"},
	{BlockCTA, "CTA Button"},
	{BlockTrustBadges, "Trust Badges"},
	{BlockUrgencyTimer, "Urgency Timer"},
	{BlockSocialProof, "Social Proof"},
	{BlockReviews, "Reviews"},
}

// Label returns the palette label for t, or the raw type name.
func Label(t BlockType) string {
	for _, e := range Palette {
		if e.Type == t {
			return e.Label
		}
	}
	return string(t)
}

// NewID returns a short random identifier for pages and blocks.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
