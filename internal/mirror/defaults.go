package mirror

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed mirrors.yaml
var embeddedDefaults []byte

type defaultsFile struct {
	Mirrors []string `yaml:"mirrors"`
}

// DefaultMirrors returns the embedded default mirror list. The list is
// static per build; runtime additions live only in memory.
func DefaultMirrors() ([]string, error) {
	var parsed defaultsFile
	if err := yaml.Unmarshal(embeddedDefaults, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse embedded mirror list: %w", err)
	}
	return parsed.Mirrors, nil
}
