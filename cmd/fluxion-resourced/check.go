package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/fluxion/internal/log"
	"github.com/cuemby/fluxion/pkg/engine"
	"github.com/cuemby/fluxion/pkg/jobspec"
	"github.com/cuemby/fluxion/pkg/rset"
)

// checkCmd is an offline feasibility checker: build a synthetic
// resource graph from a grug spec, run a jobspec through
// feasibility.check, and report satisfiable/unsatisfiable without
// ever starting the reactor's request loop. This replaces the
// teacher's interactive "apply a manifest to a running cluster"
// command with the nearest thing that fits a single-process reactor:
// a standalone dry run against one generated graph, in the same
// spirit as the original implementation's offline resource-query tool.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a jobspec is satisfiable against a generated graph",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().String("grug-spec", "", "Synthetic resource-graph generator spec (YAML)")
	checkCmd.Flags().String("jobspec", "", "Jobspec file (JSON)")
	checkCmd.Flags().String("match-policy", "first", "Match policy (first, high, low, locality)")
	checkCmd.Flags().Int64("graph-start", 0, "Graph time window start (seconds)")
	checkCmd.Flags().Int64("graph-end", 365*24*3600, "Graph time window end (seconds)")
	_ = checkCmd.MarkFlagRequired("grug-spec")
	_ = checkCmd.MarkFlagRequired("jobspec")
}

func runCheck(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	grugPath, _ := cmd.Flags().GetString("grug-spec")
	jobspecPath, _ := cmd.Flags().GetString("jobspec")
	policyName, _ := cmd.Flags().GetString("match-policy")
	start, _ := cmd.Flags().GetInt64("graph-start")
	end, _ := cmd.Flags().GetInt64("graph-end")

	g, err := buildGraph(grugPath, start, end, 0)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(jobspecPath)
	if err != nil {
		return fmt.Errorf("reading jobspec: %w", err)
	}
	var js jobspec.Jobspec
	if err := json.Unmarshal(data, &js); err != nil {
		return fmt.Errorf("parsing jobspec: %w", err)
	}
	if err := js.Validate(); err != nil {
		return fmt.Errorf("invalid jobspec: %w", err)
	}

	e, err := engine.New(g, policyName, rset.FormatRV1NoSched, engine.Options{})
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.FeasibilityCheck(&js, start); err != nil {
		fmt.Printf("UNSATISFIABLE: %v\n", err)
		return err
	}
	fmt.Println("SATISFIABLE")
	return nil
}
