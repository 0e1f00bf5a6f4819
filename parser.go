package inversion

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/seoyhaein/utils"
	"gopkg.in/yaml.v3"
)

// A scenario file holds either one scenario mapping:
//
//	name: fault
//	policy: baseline
//	low_work_iterations: infinite
//	flood_interval: 3s
//
// or a suite:
//
//	trials: 5
//	scenarios:
//	  - name: fault
//	    policy: baseline
//	  - name: mitigated
//	    policy: mitigated
//
// Keys left out take the package defaults; medium_count and settle_interval
// default to DefaultMediumCount and DefaultSettleInterval, and an explicit 0
// is kept. low_work_iterations must be a positive integer or "infinite".

// ParseScenarios reads scenario YAML from r. trials is 1 for a single
// scenario document.
func ParseScenarios(r io.Reader) (scenarios []ScenarioConfig, trials int, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, 0, fmt.Errorf("%w: empty scenario document", ErrInvalidConfig)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, 0, fmt.Errorf("%w: top level must be a mapping", ErrInvalidConfig)
	}
	root := doc.Content[0]

	list := mappingValue(root, "scenarios")
	if list == nil {
		c, err := decodeScenario(root)
		if err != nil {
			return nil, 0, err
		}
		return []ScenarioConfig{c}, 1, nil
	}

	trials = 1
	if t := mappingValue(root, "trials"); t != nil {
		if err := t.Decode(&trials); err != nil {
			return nil, 0, fmt.Errorf("%w: trials: %v", ErrInvalidConfig, err)
		}
		if trials < 1 {
			return nil, 0, fmt.Errorf("%w: trials must be >= 1, got %d", ErrInvalidConfig, trials)
		}
	}
	if list.Kind != yaml.SequenceNode || len(list.Content) == 0 {
		return nil, 0, fmt.Errorf("%w: scenarios must be a non-empty list", ErrInvalidConfig)
	}
	for i, n := range list.Content {
		c, err := decodeScenario(n)
		if err != nil {
			return nil, 0, fmt.Errorf("scenario %d: %w", i, err)
		}
		scenarios = append(scenarios, c)
	}
	return scenarios, trials, nil
}

// LoadSuiteFile reads a scenario file into a Suite.
func LoadSuiteFile(path string) (*Suite, error) {
	if ok, _, err := utils.FileExists(path); !ok {
		return nil, fmt.Errorf("scenario file %q: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scenarios, trials, err := ParseScenarios(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewSuite(trials, scenarios...), nil
}

func decodeScenario(n *yaml.Node) (ScenarioConfig, error) {
	c := ScenarioConfig{
		MediumCount:    DefaultMediumCount,
		SettleInterval: DefaultSettleInterval,
		LowWork:        DefaultLowIterations,
	}
	if err := n.Decode(&c); err != nil {
		return ScenarioConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return ScenarioConfig{}, err
	}
	return c, nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
