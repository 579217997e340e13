package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vkngwrapper/marksweep/heap"
	"github.com/vkngwrapper/marksweep/workload"
)

// runScripts runs every script in order against one heap, reporting as it goes
func runScripts(cmd *cobra.Command, env *environment, scripts []*workload.Script) error {
	out := cmd.OutOrStdout()

	var dumpErr error
	options := workload.Options{
		OnDump: func(step int, h *heap.Heap) {
			err := printDump(out, h)
			if err != nil && dumpErr == nil {
				dumpErr = err
			}
		},
	}

	for _, script := range scripts {
		fmt.Fprintf(out, "--- %s ---\n", script.Name)
		if script.Description != "" {
			fmt.Fprintln(out, script.Description)
		}

		runner, err := workload.NewRunner(env.logger, env.heap, env.stack, env.globals, options)
		if err != nil {
			return err
		}

		result, err := runner.Run(script)
		closeErr := runner.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
		if dumpErr != nil {
			return dumpErr
		}

		for _, stats := range result.Collections {
			printCollection(out, stats)
		}
		printStats(out, env.heap)
		fmt.Fprintf(out, "✓ %s passed (%d steps)\n\n", script.Name, result.Steps)
	}

	fmt.Fprintln(out, "Totals:")
	printCounters(out, env.heap)

	return env.heap.Validate()
}
