package llm

import (
	"fmt"
	"sort"
	"strings"
)

// Style is one entry of the redesign style catalog.
type Style struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	prompt      string
}

var styles = map[string]Style{
	"modern": {
		Slug: "modern", Name: "Modern",
		Description: "Clean lines, neutral palette, sleek furniture",
		prompt:      "modern interior design, clean lines, neutral color palette, sleek low-profile furniture, polished surfaces, recessed lighting",
	},
	"scandinavian": {
		Slug: "scandinavian", Name: "Scandinavian",
		Description: "Light woods, white walls, cozy textiles",
		prompt:      "scandinavian interior design, light oak wood, white walls, cozy wool textiles, minimal decor, abundant natural light",
	},
	"industrial": {
		Slug: "industrial", Name: "Industrial",
		Description: "Exposed brick, metal accents, raw materials",
		prompt:      "industrial loft interior design, exposed brick walls, black metal accents, concrete floor, edison bulb lighting, leather furniture",
	},
	"bohemian": {
		Slug: "bohemian", Name: "Bohemian",
		Description: "Layered patterns, plants, warm eclectic decor",
		prompt:      "bohemian interior design, layered patterned rugs, rattan furniture, many indoor plants, warm earthy tones, eclectic decor",
	},
	"minimalist": {
		Slug: "minimalist", Name: "Minimalist",
		Description: "Only the essentials, calm and uncluttered",
		prompt:      "minimalist interior design, uncluttered space, monochrome palette, hidden storage, simple geometric furniture",
	},
	"coastal": {
		Slug: "coastal", Name: "Coastal",
		Description: "Breezy blues, whites and natural fibres",
		prompt:      "coastal interior design, soft blue and white palette, linen fabrics, jute rug, whitewashed wood, airy and bright",
	},
	"japandi": {
		Slug: "japandi", Name: "Japandi",
		Description: "Japanese calm meets Scandinavian warmth",
		prompt:      "japandi interior design, low wooden furniture, muted earth tones, paper lanterns, natural materials, serene atmosphere",
	},
	"mid-century": {
		Slug: "mid-century", Name: "Mid-Century Modern",
		Description: "Organic curves, walnut wood, retro accents",
		prompt:      "mid-century modern interior design, walnut wood furniture, tapered legs, organic curves, mustard and teal accents",
	},
}

var roomTypes = map[string]string{
	"living-room": "living room",
	"bedroom":     "bedroom",
	"kitchen":     "kitchen",
	"bathroom":    "bathroom",
	"dining-room": "dining room",
	"home-office": "home office",
	"kids-room":   "kids room",
	"outdoor":     "outdoor patio",
}

// Styles returns the catalog ordered by slug.
func Styles() []Style {
	out := make([]Style, 0, len(styles))
	for _, s := range styles {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// RoomTypes returns the supported room type slugs in order.
func RoomTypes() []string {
	out := make([]string, 0, len(roomTypes))
	for slug := range roomTypes {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

func LookupStyle(slug string) (Style, bool) {
	s, ok := styles[strings.ToLower(strings.TrimSpace(slug))]
	return s, ok
}

func ValidRoomType(slug string) bool {
	_, ok := roomTypes[strings.ToLower(strings.TrimSpace(slug))]
	return ok
}

// BuildPrompt derives the rendering prompt from style and room. extra is
// appended verbatim when set.
func BuildPrompt(styleSlug, roomType, extra string) (string, error) {
	style, ok := LookupStyle(styleSlug)
	if !ok {
		return "", fmt.Errorf("unknown style %q", styleSlug)
	}
	room, ok := roomTypes[strings.ToLower(strings.TrimSpace(roomType))]
	if !ok {
		return "", fmt.Errorf("unknown room type %q", roomType)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A photorealistic %s, %s. Keep the original room layout, walls, windows and camera angle.", room, style.prompt)
	if extra = strings.TrimSpace(extra); extra != "" {
		b.WriteString(" ")
		b.WriteString(extra)
	}
	b.WriteString(" High quality, professional interior photography, 8k.")
	return b.String(), nil
}
