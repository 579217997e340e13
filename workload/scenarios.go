package workload

import (
	"embed"
	"path"

	"github.com/cockroachdb/errors"
)

//go:embed scenarios/*.json
var scenarioFiles embed.FS

// demoScenarios run in this order against a single heap; each one's expectations depend on
// the free blocks left behind by the one before it
var demoScenarios = []string{
	"basic_allocation.json",
	"garbage_collection.json",
	"multiple_unreachable.json",
}

// DemoScripts returns the built-in demonstration scripts in the order they must run
func DemoScripts() ([]*Script, error) {
	scripts := make([]*Script, 0, len(demoScenarios))

	for _, name := range demoScenarios {
		data, err := scenarioFiles.ReadFile(path.Join("scenarios", name))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read scenario %s", name)
		}

		script, err := Parse(data)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse scenario %s", name)
		}

		scripts = append(scripts, script)
	}

	return scripts, nil
}
