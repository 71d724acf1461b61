package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/fluxion/internal/log"
	"github.com/cuemby/fluxion/internal/metrics"
	"github.com/cuemby/fluxion/pkg/config"
	"github.com/cuemby/fluxion/pkg/engine"
	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/graph/grug"
	"github.com/cuemby/fluxion/pkg/rpc"
	"github.com/cuemby/fluxion/pkg/rset"
)

// request is one line of the stdio transport's request envelope: a
// Topic plus its JSON payload, newline-delimited on stdin. The
// response envelope mirrors it on stdout. This stands in for the RPC
// server surface spec section 1 scopes as an external collaborator
// (rpc.Dispatcher is the real interface; this is the simplest
// concrete thing that can drive it end to end without fabricating a
// generated-code transport we could never compile-check).
type request struct {
	ID      int64           `json:"id"`
	Topic   rpc.Topic       `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

type response struct {
	ID      int64           `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the resource-match reactor",
	Long: `Loads configuration, builds the resource graph, and runs the
single-threaded reactor that serves resource.* and feasibility.check
requests (spec section 6) read as newline-delimited JSON from stdin,
one response per request written to stdout in request order.`,
	RunE: runReactor,
}

func init() {
	runCmd.Flags().String("grug-spec", "", "Synthetic resource-graph generator spec (YAML); required unless config's load-file names one")
	runCmd.Flags().String("metrics-addr", "", "If set, serve Prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().Int64("graph-start", 0, "Graph time window start (seconds)")
	runCmd.Flags().Int64("graph-end", 365*24*3600, "Graph time window end (seconds)")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	tokens, _ := cmd.Flags().GetStringSlice("set")

	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	tokens = append(tokens, "log-level="+logLevel)
	if logJSON {
		tokens = append(tokens, "log-json=true")
	}

	return config.Load(configPath, tokens)
}

func runReactor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

	grugPath, _ := cmd.Flags().GetString("grug-spec")
	if grugPath == "" {
		grugPath = cfg.LoadFile
	}
	if grugPath == "" {
		return cobraUsageError(cmd, "one of --grug-spec or config's load-file is required to build the initial graph")
	}
	start, _ := cmd.Flags().GetInt64("graph-start")
	end, _ := cmd.Flags().GetInt64("graph-end")

	g, err := buildGraph(grugPath, start, end, cfg.ReserveVtxVec)
	if err != nil {
		return err
	}

	e, err := engine.New(g, cfg.MatchPolicy, rset.Format(cfg.MatchFormat), engine.Options{
		Subsystems:   cfg.Subsystems,
		PruneFilters: cfg.PruneFilters,
	})
	if err != nil {
		return err
	}
	defer e.Close()

	if cfg.UpdateInterval > 0 {
		e.StartMetrics(time.Duration(cfg.UpdateInterval) * time.Second)
	}

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		srv := &http.Server{Addr: addr, Handler: metrics.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithComponent("cmd").Error().Err(err).Msg("metrics server exited")
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	log.WithComponent("cmd").Info().
		Str("match-policy", cfg.MatchPolicy).
		Str("match-format", cfg.MatchFormat).
		Int("vertices", g.V()).
		Msg("reactor ready, reading requests from stdin")

	return serveStdio(e)
}

func buildGraph(grugPath string, start, end, reserveVtxVec int64) (*graph.Graph, error) {
	spec, err := grug.LoadSpec(grugPath)
	if err != nil {
		return nil, err
	}
	return grug.Generate(spec, start, end, reserveVtxVec)
}

// serveStdio is the reactor loop: every line is dispatched to
// completion before the next is read, which is what keeps match
// attempts strictly sequenced (spec section 5) without a mutex inside
// Engine itself.
func serveStdio(e *engine.Engine) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	out := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			out.Encode(response{Error: "malformed request line: " + err.Error()})
			continue
		}
		resp := response{ID: req.ID}
		payload, err := e.Dispatch(context.Background(), req.Topic, req.Payload)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Payload = payload
		}
		out.Encode(resp)
	}
	return scanner.Err()
}

func cobraUsageError(cmd *cobra.Command, msg string) error {
	return fmt.Errorf("%s: %s", cmd.Name(), msg)
}
