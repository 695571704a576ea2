package generation

import (
	"fmt"
	"strings"

	"github.com/dyluth/atelier/internal/llm"
	"github.com/dyluth/atelier/internal/strategy"
	"github.com/dyluth/atelier/pkg/blackboard"
)

// IdeasPerTask is how many ideas the Ideator asks for.
const IdeasPerTask = 5

var ideatorStrategies = []strategy.Strategy{
	{Name: "conceptual", DefaultWeight: 0.8, Keywords: []string{"concept", "abstract", "idea", "philosophy", "meaning", "evolv", "emergent", "diffusion", "generative"}},
	{Name: "narrative", DefaultWeight: 0.6, Keywords: []string{"story", "narrative", "character", "plot", "sequence"}},
	{Name: "visual", DefaultWeight: 0.9, Keywords: []string{"visual", "composition", "color", "form", "texture"}},
	{Name: "emotional", DefaultWeight: 0.7, Keywords: []string{"emotion", "feeling", "mood", "atmosphere", "expression"}},
	{Name: "technical", DefaultWeight: 0.5, Keywords: []string{"technique", "method", "process", "execution", "craft", "diffusion", "generative"}},
	{Name: "cultural", DefaultWeight: 0.6, Keywords: []string{"culture", "reference", "history", "society", "tradition"}},
	{Name: "experimental", DefaultWeight: 0.4, Keywords: []string{"experiment", "innovative", "novel", "unique", "unconventional"}},
}

type ideatorFraming struct {
	focus       string
	asks        []string
	temperature float64
}

var ideatorFramings = map[string]ideatorFraming{
	"conceptual": {
		focus:       "CONCEPTUAL ideation. Focus on abstract concepts, philosophical themes and meaningful ideas that challenge perception and provoke thought.",
		asks:        []string{"a title that encapsulates the concept", "a one sentence description", "key conceptual elements", "styles suited to the concept", "the intellectual or emotional impact", "the philosophical theme"},
		temperature: 0.7,
	},
	"narrative": {
		focus:       "NARRATIVE ideation. Focus on storytelling and character, conveying a story through visual means.",
		asks:        []string{"a title", "the story in one or two sentences", "key characters and visual elements", "styles suited to the story", "the emotional arc", "the central theme"},
		temperature: 0.8,
	},
	"visual": {
		focus:       "VISUAL ideation. Focus on composition, color theory, form and texture. Prioritize visual impact.",
		asks:        []string{"a title", "a description of the composition", "key visual elements", "styles", "the emotional impact", "the color palette and texture approach as the theme"},
		temperature: 0.7,
	},
	"emotional": {
		focus:       "EMOTIONAL ideation. Focus on mood and atmosphere, building ideas around what the viewer should feel.",
		asks:        []string{"a title", "a description", "elements that carry the mood", "styles", "the primary emotional impact", "the underlying emotional theme"},
		temperature: 0.8,
	},
	"technical": {
		focus:       "TECHNICAL ideation. Focus on process and execution, letting the medium and method shape the idea.",
		asks:        []string{"a title", "a description of the process", "key technical elements", "styles", "the emotional impact", "the technique at the heart of the idea"},
		temperature: 0.7,
	},
	"cultural": {
		focus:       "CULTURAL ideation. Focus on history, tradition and social references, reinterpreting them for today.",
		asks:        []string{"a title", "a description", "cultural references and elements", "styles", "the emotional impact", "the cultural theme"},
		temperature: 0.8,
	},
	"experimental": {
		focus:       "EXPERIMENTAL ideation. Focus on innovative and unconventional approaches that break expectations.",
		asks:        []string{"a title", "a description", "unexpected elements", "styles", "the emotional impact", "what makes the idea new"},
		temperature: 0.8,
	},
}

// Ideator turns a brief into candidate ideas.
type Ideator struct{}

// NewIdeator creates the Ideator agent.
func NewIdeator(completer llm.Completer, opts Options) *Agent {
	return New(Ideator{}, completer, opts)
}

func (Ideator) Role() blackboard.Role            { return blackboard.RoleIdeator }
func (Ideator) TaskType() blackboard.TaskType    { return blackboard.TaskTypeIdeation }
func (Ideator) Strategies() []strategy.Strategy { return ideatorStrategies }

func (Ideator) Prompt(name string, brief blackboard.Brief, _ *blackboard.TaskResult) llm.Request {
	framing, ok := ideatorFramings[name]
	if !ok {
		framing = ideatorFramings["visual"]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d art ideas for the following project:\n\n", IdeasPerTask)
	b.WriteString(briefBlock(brief.Title, brief.Description, brief.Requirements))
	b.WriteString("\n\nFor each idea, provide:\n")
	for i, ask := range framing.asks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ask)
	}
	b.WriteString("\nRespond with a JSON array of objects with the keys title, description, elements, styles, emotionalImpact and theme.")

	return llm.Request{
		Messages: []llm.Message{
			llm.System("You are the Ideator agent in a multi-agent art creation system, specializing in " + framing.focus),
			llm.User(b.String()),
		},
		Temperature: framing.temperature,
	}
}

func (Ideator) Parse(content string) (blackboard.TaskResult, error) {
	ideas, err := decodeList[blackboard.Idea](content, "ideas")
	if err != nil {
		return blackboard.TaskResult{}, err
	}
	kept := ideas[:0]
	for _, idea := range ideas {
		if strings.TrimSpace(idea.Title) == "" {
			continue
		}
		kept = append(kept, idea)
	}
	if len(kept) == 0 {
		return blackboard.TaskResult{}, fmt.Errorf("completion contained no usable ideas")
	}
	return blackboard.TaskResult{Ideas: kept}, nil
}

func (Ideator) Fallback(blackboard.Brief, *blackboard.TaskResult) blackboard.TaskResult {
	return blackboard.TaskResult{Ideas: []blackboard.Idea{{
		Title:           "Fallback Idea",
		Description:     "A simple concept using basic elements",
		Elements:        []string{"simple shapes", "primary colors"},
		Styles:          []string{"minimalist"},
		EmotionalImpact: "calm",
	}}}
}
