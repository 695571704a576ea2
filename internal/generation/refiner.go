package generation

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/dyluth/atelier/internal/imagegen"
	"github.com/dyluth/atelier/internal/llm"
	"github.com/dyluth/atelier/internal/strategy"
	"github.com/dyluth/atelier/pkg/blackboard"
)

var refinerStrategies = []strategy.Strategy{
	{Name: "composition", DefaultWeight: 0.8, Keywords: []string{"composition", "balance", "layout", "structure", "focal"}},
	{Name: "color", DefaultWeight: 0.7, Keywords: []string{"color", "palette", "hue", "contrast", "light"}},
	{Name: "texture", DefaultWeight: 0.6, Keywords: []string{"texture", "surface", "material", "grain", "layer"}},
	{Name: "atmosphere", DefaultWeight: 0.7, Keywords: []string{"atmosphere", "mood", "emotion", "feeling", "tone"}},
	{Name: "detail", DefaultWeight: 0.5, Keywords: []string{"detail", "complexity", "intricate", "precise", "element"}},
}

var refinerFocus = map[string]string{
	"composition": "tightening structure, focal points and the flow of the eye",
	"color":       "resolving the palette, dominant color and transitions",
	"texture":     "surface quality, materials and tactile detail",
	"atmosphere":  "the mood and emotional tone of the finished piece",
	"detail":      "precise secondary elements that reward close viewing",
}

const defaultNegativePrompt = "blurry, low quality, distorted, watermark, text, signature"

// Refiner merges the styled ideas into one artwork and renders it.
type Refiner struct {
	images imagegen.Synthesizer
}

// NewRefiner creates the Refiner agent. A nil synthesizer leaves artworks
// without an image.
func NewRefiner(completer llm.Completer, images imagegen.Synthesizer, opts Options) *Agent {
	if images == nil {
		images = imagegen.Disabled{}
	}
	return New(&Refiner{images: images}, completer, opts)
}

func (*Refiner) Role() blackboard.Role            { return blackboard.RoleRefiner }
func (*Refiner) TaskType() blackboard.TaskType    { return blackboard.TaskTypeRefinement }
func (*Refiner) Strategies() []strategy.Strategy { return refinerStrategies }

func (*Refiner) Prompt(name string, brief blackboard.Brief, input *blackboard.TaskResult) llm.Request {
	focus := refinerFocus[name]
	if focus == "" {
		focus = refinerFocus["composition"]
	}

	var b strings.Builder
	b.WriteString("Refine the styles below into a single finished artwork for this project:\n\n")
	b.WriteString(briefBlock(brief.Title, brief.Description, brief.Requirements))
	if input != nil && len(input.Styles) > 0 {
		b.WriteString("\n\nStyles:\n")
		for _, s := range input.Styles {
			fmt.Fprintf(&b, "- %s: %s", s.Name, s.Description)
			if len(s.ColorPalette) > 0 {
				fmt.Fprintf(&b, " (palette: %s)", strings.Join(s.ColorPalette, ", "))
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\nRespond with one JSON object with the keys title, description, prompt, negativePrompt, visualElements, " +
		"composition {structure, focalPoints, flow, balance}, colorUsage {palette, dominant, accents, transitions}, " +
		"texture {type, details, materials} and emotionalImpact {primary, secondary, notes}. " +
		"The prompt is a single paragraph for an image model.")

	return llm.Request{
		Messages: []llm.Message{
			llm.System("You are the Refiner agent in a multi-agent art creation system. You refine by " + focus + "."),
			llm.User(b.String()),
		},
		Temperature: 0.6,
	}
}

func (*Refiner) Parse(content string) (blackboard.TaskResult, error) {
	artwork, err := decodeObject[blackboard.Artwork](content, "artwork")
	if err != nil {
		return blackboard.TaskResult{}, err
	}
	if strings.TrimSpace(artwork.Title) == "" {
		return blackboard.TaskResult{}, fmt.Errorf("artwork has no title")
	}
	if strings.TrimSpace(artwork.Prompt) == "" {
		artwork.Prompt = artwork.Description
	}
	return blackboard.TaskResult{Artwork: &artwork}, nil
}

func (*Refiner) Fallback(brief blackboard.Brief, input *blackboard.TaskResult) blackboard.TaskResult {
	palette := []string{"#1d3557", "#e63946", "#f1faee"}
	styleName := "minimalist"
	if input != nil && len(input.Styles) > 0 {
		styleName = input.Styles[0].Name
		if len(input.Styles[0].ColorPalette) > 0 {
			palette = input.Styles[0].ColorPalette
		}
	}
	title := nonEmpty(brief.Title, "Untitled")
	return blackboard.TaskResult{Artwork: &blackboard.Artwork{
		Title:          title,
		Description:    "A simple composition of basic elements",
		Prompt:         fmt.Sprintf("%s, %s style, simple shapes, balanced composition", title, styleName),
		VisualElements: []string{"simple shapes", "primary colors"},
		Composition:    blackboard.Composition{Structure: "centered", Balance: "symmetrical"},
		ColorUsage:     blackboard.ColorUsage{Palette: palette, Dominant: palette[0]},
		Texture:        blackboard.Texture{Type: "smooth"},
		EmotionalImpact: blackboard.EmotionalImpact{
			Primary: "calm",
		},
	}}
}

// Finish renders the artwork prompt. A synthesis failure leaves ImageURL
// empty.
func (r *Refiner) Finish(ctx context.Context, result *blackboard.TaskResult, _ blackboard.Brief) {
	if result.Artwork == nil || result.Artwork.Prompt == "" {
		return
	}
	if result.Artwork.NegativePrompt == "" {
		result.Artwork.NegativePrompt = defaultNegativePrompt
	}
	url, err := r.images.Synthesize(ctx, imagegen.Request{
		Prompt:         result.Artwork.Prompt,
		NegativePrompt: result.Artwork.NegativePrompt,
	})
	if err != nil {
		log.Printf("[Refiner] Image synthesis failed for %q: %v", result.Artwork.Title, err)
		return
	}
	result.Artwork.ImageURL = url
	log.Printf("[Refiner] Rendered %q: %s", result.Artwork.Title, url)
}
