package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/marksweep/heap"
)

// runCommand executes the root command with args and returns what it wrote to stdout
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	verbose = false
	jsonOut = false
	reserveBytes = heap.DefaultReserveBytes
	maxHeapBytes = 0
	dumpLimit = 20
	collectOnExhaustion = false
	coalesceAfterCollection = false
	globalSlots = 16

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestDemo(t *testing.T) {
	output, err := runCommand(t, "demo")
	require.NoError(t, err)

	require.Contains(t, output, "--- basic-allocation ---")
	require.Contains(t, output, "✓ garbage-collection passed")
	require.Contains(t, output, "✓ multiple-unreachable passed")
	require.Contains(t, output, "[HEAP DUMP]")
	require.Contains(t, output, "[Allocated: 0 blocks | Free: 1 blocks")
	require.Contains(t, output, "2 collections, 4 blocks reclaimed")
}

func TestDemoDumpLimit(t *testing.T) {
	output, err := runCommand(t, "demo", "--dump-limit", "2")
	require.NoError(t, err)
	require.Contains(t, output, "(stopped after 2 blocks)")
}

func TestDemoJSONDump(t *testing.T) {
	output, err := runCommand(t, "demo", "--json")
	require.NoError(t, err)

	start := strings.Index(output, "{")
	require.GreaterOrEqual(t, start, 0)
	line := output[start:]
	line = line[:strings.Index(line, "\n")]

	r := jreader.NewReader([]byte(line))
	blocks := 0
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "Allocations":
			require.Equal(t, 1, r.Int())
		case "Map":
			for arr := r.Array(); arr.Next(); {
				require.NoError(t, r.SkipValue())
				blocks++
			}
		default:
			require.NoError(t, r.SkipValue())
		}
	}
	require.NoError(t, r.Error())
	require.Equal(t, 5, blocks)
}

func TestRunScripts(t *testing.T) {
	output, err := runCommand(t, "run", filepath.Join("testdata", "linked_list.json"))
	require.NoError(t, err)
	require.Contains(t, output, "✓ linked-list passed (13 steps)")
	require.Contains(t, output, "3 reclaimed")
}

func TestRunCollectsOnExhaustion(t *testing.T) {
	script := filepath.Join("testdata", "exhaustion.json")

	_, err := runCommand(t, "run", "--max-heap", "512", script)
	require.Error(t, err)

	output, err := runCommand(t, "run", "--max-heap", "512", "--collect-on-exhaustion", "--coalesce-after-collection", script)
	require.NoError(t, err)
	require.Contains(t, output, "✓ exhaustion passed")
	require.Contains(t, output, "1 collections, 3 blocks reclaimed")
}

func TestRunMissingScript(t *testing.T) {
	_, err := runCommand(t, "run", filepath.Join("testdata", "missing.json"))
	require.Error(t, err)

	_, err = runCommand(t, "run")
	require.Error(t, err)
}
