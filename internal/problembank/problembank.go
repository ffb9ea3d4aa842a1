// Package problembank loads the word problems that seed new sessions.
package problembank

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrBlankProblem is returned when an entry has no text.
var ErrBlankProblem = errors.New("problem text is empty")

type file struct {
	Problems []entry `yaml:"problems"`
}

type entry struct {
	Text string `yaml:"text"`
}

// Load reads a problem bank file. An empty path yields no problems.
func Load(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read problem bank: %w", err)
	}
	problems, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("problem bank %s: %w", path, err)
	}
	return problems, nil
}

// Parse decodes problem bank YAML. Texts are trimmed the same way problems
// added in a session are; an entry that is empty or whitespace-only fails
// the whole file.
func Parse(data []byte) ([]string, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out := make([]string, 0, len(f.Problems))
	for i, p := range f.Problems {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			return nil, fmt.Errorf("entry %d: %w", i, ErrBlankProblem)
		}
		out = append(out, text)
	}
	return out, nil
}
