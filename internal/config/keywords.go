package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agentorg/runtime/internal/domain/topic"
	"github.com/agentorg/runtime/internal/service"
)

// KeywordsFile is the parsed contents of keywords.yaml: the
// IntentionDetector's category keyword table and per-category required
// second count, externalized so tuning doesn't require a rebuild (spec.md
// §9's REDESIGN FLAG on IntentionDetector.DefaultKeywords).
type KeywordsFile struct {
	Keywords        map[string][]string `yaml:"keywords"`
	RequiredSeconds map[string]int      `yaml:"required_seconds"`
}

// LoadKeywordsYAML reads and parses a keywords.yaml file at path into the
// service layer's KeywordTable/RequiredSecondsTable. An empty path returns
// nil tables, letting the caller fall back to service.DefaultKeywords and
// service.DefaultRequiredSeconds.
func LoadKeywordsYAML(path string) (service.KeywordTable, service.RequiredSecondsTable, error) {
	if path == "" {
		return nil, nil, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from trusted config
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	var file KeywordsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	keywords := make(service.KeywordTable, len(file.Keywords))
	for category, kws := range file.Keywords {
		keywords[topic.Category(category)] = kws
	}

	required := make(service.RequiredSecondsTable, len(file.RequiredSeconds))
	for category, n := range file.RequiredSeconds {
		required[topic.Category(category)] = n
	}

	return keywords, required, nil
}
