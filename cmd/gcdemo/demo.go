package main

import (
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/marksweep/workload"
)

func init() {
	rootCmd.AddCommand(newDemoCmd())
}

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the built-in demonstration",
		Long: `The demo command runs three scenarios against a single heap: basic allocation and
release, collection of one unreachable block, and collection of three unreachable blocks out of
four. Each scenario checks the live and free block counts as it goes.

Example:
  gcdemo demo
  gcdemo demo --json --dump-limit 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd)
		},
	}
	return cmd
}

func runDemo(cmd *cobra.Command) error {
	scripts, err := workload.DemoScripts()
	if err != nil {
		return err
	}

	env, err := newEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	return runScripts(cmd, env, scripts)
}
