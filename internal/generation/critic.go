package generation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dyluth/atelier/internal/llm"
	"github.com/dyluth/atelier/internal/strategy"
	"github.com/dyluth/atelier/pkg/blackboard"
)

var criticStrategies = []strategy.Strategy{
	{Name: "formal", DefaultWeight: 0.8, Keywords: []string{"composition", "form", "color", "balance", "structure"}},
	{Name: "conceptual", DefaultWeight: 0.7, Keywords: []string{"concept", "idea", "meaning", "theme", "abstract"}},
	{Name: "emotional", DefaultWeight: 0.6, Keywords: []string{"emotion", "feeling", "mood", "impact", "expression"}},
	{Name: "contextual", DefaultWeight: 0.5, Keywords: []string{"history", "culture", "movement", "reference", "context"}},
	{Name: "technical", DefaultWeight: 0.5, Keywords: []string{"technique", "execution", "craft", "diffusion", "generative"}},
}

var criticLens = map[string]string{
	"formal":     "formal analysis of composition, color and structure",
	"conceptual": "the strength and coherence of the underlying concept",
	"emotional":  "the emotional impact on the viewer",
	"contextual": "how the work sits within art history and culture",
	"technical":  "craft and execution, including how well the medium is used",
}

// CriteriaScored are the score keys the Critic asks for.
var CriteriaScored = []string{"composition", "color", "concept", "originality", "emotionalImpact"}

// Critic evaluates the refined artwork.
type Critic struct{}

// NewCritic creates the Critic agent.
func NewCritic(completer llm.Completer, opts Options) *Agent {
	return New(Critic{}, completer, opts)
}

func (Critic) Role() blackboard.Role            { return blackboard.RoleCritic }
func (Critic) TaskType() blackboard.TaskType    { return blackboard.TaskTypeCritique }
func (Critic) Strategies() []strategy.Strategy { return criticStrategies }

func (Critic) Prompt(name string, brief blackboard.Brief, input *blackboard.TaskResult) llm.Request {
	lens := criticLens[name]
	if lens == "" {
		lens = criticLens["formal"]
	}

	var b strings.Builder
	b.WriteString("Critique the artwork below against its brief:\n\n")
	b.WriteString(briefBlock(brief.Title, brief.Description, brief.Requirements))
	if input != nil && input.Artwork != nil {
		a := input.Artwork
		fmt.Fprintf(&b, "\n\nArtwork: %s\n%s\nPrompt: %s\n", a.Title, a.Description, a.Prompt)
		if len(a.VisualElements) > 0 {
			fmt.Fprintf(&b, "Visual elements: %s\n", strings.Join(a.VisualElements, ", "))
		}
		if a.ImageURL != "" {
			fmt.Fprintf(&b, "Image: %s\n", a.ImageURL)
		}
	}
	fmt.Fprintf(&b, "\nRespond with one JSON object with the keys strengths, areasForImprovement, "+
		"scores (0-10 for each of %s), overallScore, recommendations and analysisNotes.",
		strings.Join(CriteriaScored, ", "))

	return llm.Request{
		Messages: []llm.Message{
			llm.System("You are the Critic agent in a multi-agent art creation system. Your critique focuses on " + lens + "."),
			llm.User(b.String()),
		},
		Temperature: 0.4,
	}
}

// Parse clamps every score to [0, 10] and derives the overall score from
// the criteria when the model omitted it.
func (Critic) Parse(content string) (blackboard.TaskResult, error) {
	critique, err := decodeObject[blackboard.Critique](content, "critique")
	if err != nil {
		return blackboard.TaskResult{}, err
	}
	if len(critique.Scores) == 0 && critique.OverallScore == 0 && len(critique.Strengths) == 0 {
		return blackboard.TaskResult{}, fmt.Errorf("critique has no scores or strengths")
	}

	for k, v := range critique.Scores {
		critique.Scores[k] = clampScore(v)
	}
	if critique.OverallScore == 0 && len(critique.Scores) > 0 {
		critique.OverallScore = meanScore(critique.Scores)
	}
	critique.OverallScore = clampScore(critique.OverallScore)

	return blackboard.TaskResult{Critique: &critique}, nil
}

func (Critic) Fallback(blackboard.Brief, *blackboard.TaskResult) blackboard.TaskResult {
	scores := make(map[string]float64, len(CriteriaScored))
	for _, c := range CriteriaScored {
		scores[c] = 5
	}
	return blackboard.TaskResult{Critique: &blackboard.Critique{
		Strengths:           []string{"clear and simple presentation"},
		AreasForImprovement: []string{"a detailed critique could not be produced"},
		Scores:              scores,
		OverallScore:        5,
		Recommendations:     []string{"review the artwork manually"},
	}}
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(strategy.MaxRating, v))
}

// meanScore averages in key order so the result is deterministic.
func meanScore(scores map[string]float64) float64 {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sum float64
	for _, k := range keys {
		sum += scores[k]
	}
	return math.Round(sum/float64(len(keys))*100) / 100
}
