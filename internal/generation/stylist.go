package generation

import (
	"fmt"
	"strings"

	"github.com/dyluth/atelier/internal/llm"
	"github.com/dyluth/atelier/internal/strategy"
	"github.com/dyluth/atelier/pkg/blackboard"
)

var stylistStrategies = []strategy.Strategy{
	{Name: "traditional", DefaultWeight: 0.6, Keywords: []string{"classical", "traditional", "painting", "realism", "portrait", "landscape"}},
	{Name: "contemporary", DefaultWeight: 0.7, Keywords: []string{"contemporary", "modern", "digital", "urban", "minimal"}},
	{Name: "surreal", DefaultWeight: 0.5, Keywords: []string{"dream", "surreal", "uncanny", "impossible", "subconscious"}},
	{Name: "abstract", DefaultWeight: 0.8, Keywords: []string{"abstract", "geometric", "form", "shape", "non-representational"}},
	{Name: "cinematic", DefaultWeight: 0.6, Keywords: []string{"cinematic", "film", "light", "scene", "dramatic"}},
	{Name: "generative", DefaultWeight: 0.7, Keywords: []string{"algorithm", "generative", "procedural", "diffusion", "code", "pattern"}},
}

var stylistFocus = map[string]string{
	"traditional":  "grounding the ideas in classical media, draftsmanship and the great painting traditions",
	"contemporary": "current visual culture, digital media and clean modern presentation",
	"surreal":      "dream logic, impossible juxtapositions and the uncanny",
	"abstract":     "form, shape and color freed from representation",
	"cinematic":    "lighting, framing and the atmosphere of a film still",
	"generative":   "procedural systems, emergent patterns and diffusion-based imagery",
}

// StylesPerTask is how many styles the Stylist asks for.
const StylesPerTask = 3

// Stylist develops visual styles for the selected ideas.
type Stylist struct{}

// NewStylist creates the Stylist agent.
func NewStylist(completer llm.Completer, opts Options) *Agent {
	return New(Stylist{}, completer, opts)
}

func (Stylist) Role() blackboard.Role            { return blackboard.RoleStylist }
func (Stylist) TaskType() blackboard.TaskType    { return blackboard.TaskTypeStyling }
func (Stylist) Strategies() []strategy.Strategy { return stylistStrategies }

func (Stylist) Prompt(name string, brief blackboard.Brief, input *blackboard.TaskResult) llm.Request {
	focus := stylistFocus[name]
	if focus == "" {
		focus = stylistFocus["contemporary"]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Develop %d distinct visual styles for this project:\n\n", StylesPerTask)
	b.WriteString(briefBlock(brief.Title, brief.Description, brief.Requirements))
	if input != nil && len(input.Ideas) > 0 {
		b.WriteString("\n\nIdeas to style:\n")
		for _, idea := range input.Ideas {
			fmt.Fprintf(&b, "- %s: %s", idea.Title, idea.Description)
			if len(idea.Elements) > 0 {
				fmt.Fprintf(&b, " (elements: %s)", strings.Join(idea.Elements, ", "))
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\nRespond with a JSON array of objects with the keys name, description, visualCharacteristics, colorPalette, texture and composition.")

	return llm.Request{
		Messages: []llm.Message{
			llm.System("You are the Stylist agent in a multi-agent art creation system. Your styles focus on " + focus + "."),
			llm.User(b.String()),
		},
		Temperature: 0.7,
	}
}

func (Stylist) Parse(content string) (blackboard.TaskResult, error) {
	styles, err := decodeList[blackboard.Style](content, "styles")
	if err != nil {
		return blackboard.TaskResult{}, err
	}
	kept := styles[:0]
	for _, s := range styles {
		if strings.TrimSpace(s.Name) == "" {
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		return blackboard.TaskResult{}, fmt.Errorf("completion contained no usable styles")
	}
	return blackboard.TaskResult{Styles: kept}, nil
}

// Fallback derives a plain style from the first idea, if any.
func (Stylist) Fallback(_ blackboard.Brief, input *blackboard.TaskResult) blackboard.TaskResult {
	style := blackboard.Style{
		Name:                  "Fallback Style",
		Description:           "A clean minimalist treatment",
		VisualCharacteristics: []string{"simple shapes", "clear outlines"},
		ColorPalette:          []string{"#1d3557", "#e63946", "#f1faee"},
		Texture:               "smooth",
		Composition:           "centered",
	}
	if input != nil && len(input.Ideas) > 0 {
		style.Description = "A clean minimalist treatment of " + input.Ideas[0].Title
	}
	return blackboard.TaskResult{Styles: []blackboard.Style{style}}
}
