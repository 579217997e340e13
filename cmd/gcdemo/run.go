package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/marksweep/workload"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script.json>...",
		Short: "Run workload scripts",
		Long: `The run command runs one or more JSON workload scripts, in order, against a single
heap. A script is a list of steps over named allocations:

  {"name": "example", "steps": [
    {"op": "acquire", "name": "a", "size": 20},
    {"op": "drop", "name": "a"},
    {"op": "collect"},
    {"op": "expect", "live": 0, "free": 1}
  ]}

Ops are acquire, release, resize, drop, store, collect, dump and expect.

Example:
  gcdemo run workload.json
  gcdemo run --max-heap 4096 --collect-on-exhaustion workload.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args)
		},
	}
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	scripts := make([]*workload.Script, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", path)
		}

		script, err := workload.Parse(data)
		if err != nil {
			return errors.Wrapf(err, "failed to parse %s", path)
		}
		if script.Name == "" {
			script.Name = path
		}

		scripts = append(scripts, script)
	}

	env, err := newEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	return runScripts(cmd, env, scripts)
}
