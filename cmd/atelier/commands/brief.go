package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/dyluth/atelier/pkg/blackboard"
	"gopkg.in/yaml.v3"
)

// briefFile is the YAML form of a brief.
type briefFile struct {
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
	Requirements []string `yaml:"requirements"`
}

func (b briefFile) brief() blackboard.Brief {
	return blackboard.Brief{
		Title:        strings.TrimSpace(b.Title),
		Description:  strings.TrimSpace(b.Description),
		Requirements: b.Requirements,
	}
}

// loadBriefs reads one brief, a list of briefs or a {briefs: [...]}
// document from a YAML file.
func loadBriefs(path string) ([]blackboard.Brief, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read briefs: %w", err)
	}
	return parseBriefs(data)
}

func parseBriefs(data []byte) ([]blackboard.Brief, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("no briefs found")
	}

	var files []briefFile
	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&files); err != nil {
			return nil, fmt.Errorf("failed to parse briefs: %w", err)
		}
	case yaml.MappingNode:
		var wrapped struct {
			Briefs []briefFile `yaml:"briefs"`
		}
		if err := root.Decode(&wrapped); err == nil && len(wrapped.Briefs) > 0 {
			files = wrapped.Briefs
			break
		}
		var one briefFile
		if err := root.Decode(&one); err != nil {
			return nil, fmt.Errorf("failed to parse brief: %w", err)
		}
		files = []briefFile{one}
	default:
		return nil, fmt.Errorf("expected a brief or a list of briefs")
	}

	briefs := make([]blackboard.Brief, 0, len(files))
	for i, f := range files {
		b := f.brief()
		if b.Title == "" {
			return nil, fmt.Errorf("brief %d has no title", i+1)
		}
		briefs = append(briefs, b)
	}
	if len(briefs) == 0 {
		return nil, fmt.Errorf("no briefs found")
	}
	return briefs, nil
}
