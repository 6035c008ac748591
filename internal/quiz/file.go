package quiz

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type fixtureFile struct {
	Quizzes []Quiz `json:"quizzes" yaml:"quizzes"`
}

// LoadFile reads quiz fixtures from a YAML or JSON file.
func LoadFile(path string) ([]Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz file: %w", err)
	}

	var fixtures fixtureFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &fixtures)
	default:
		err = yaml.Unmarshal(data, &fixtures)
	}
	if err != nil {
		return nil, fmt.Errorf("decode quiz file %s: %w", path, err)
	}

	for _, q := range fixtures.Quizzes {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("quiz %s: %w", q.ID, err)
		}
	}
	return fixtures.Quizzes, nil
}
