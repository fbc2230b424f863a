package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/hookrun/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	FlowToken string
	Command   string // optional - filter to specific command
}

// TraceEvent represents a single event in the trace timeline.
type TraceEvent struct {
	Seq     int64           `json:"seq"`
	Type    string          `json:"type"` // "invocation" or "completion"
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Depth   int             `json:"depth"`
	Input   json.RawMessage `json:"input,omitempty"`
	Outcome string          `json:"outcome,omitempty"`
	Phase   string          `json:"phase,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ProvenanceEdge links a run to a run dispatched from inside it.
type ProvenanceEdge struct {
	Parent        string `json:"parent"`
	ParentCommand string `json:"parent_command"`
	Child         string `json:"child"`
	ChildCommand  string `json:"child_command"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	FlowToken  string           `json:"flow_token"`
	Timeline   []TraceEvent     `json:"timeline"`
	Provenance []ProvenanceEdge `json:"provenance"`
	Stats      TraceStats       `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int  `json:"total_events"`
	Invocations int  `json:"invocations"`
	Completions int  `json:"completions"`
	Errors      int  `json:"errors"`
	MaxDepth    int  `json:"max_depth"`
	IsComplete  bool `json:"is_complete"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show recorded flows",
		Long: `Show what a flow did: every invocation and completion in sequence
order, indented by dispatch depth, and which run dispatched which.

Without --flow, lists the recorded flows.

Examples:
  hookrun trace --db ./hookrun.db
  hookrun trace --db ./hookrun.db --flow 0190f3c2-...
  hookrun trace --db ./hookrun.db --flow 0190f3c2-... --command Notify --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", DefaultDatabase, "path to SQLite database")
	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "flow token to trace")
	cmd.Flags().StringVar(&opts.Command, "command", "", "filter to a specific command")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Open database
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.FlowToken == "" {
		return listFlows(ctx, opts, st, cmd)
	}

	events, err := st.ReadTimeline(ctx, opts.FlowToken)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read flow", err)
	}

	// Check if flow exists
	if len(events) == 0 {
		if opts.Format == "json" {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			_ = formatter.Error(ErrCodeFlowNotFound, fmt.Sprintf("no events found for flow: %s", opts.FlowToken), nil)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "No events found for flow: %s\n", opts.FlowToken)
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("flow not found: %s", opts.FlowToken))
	}

	result := TraceResult{
		FlowToken:  opts.FlowToken,
		Timeline:   buildTimeline(events, opts.Command),
		Provenance: buildProvenance(events),
	}
	result.Stats = buildStats(events, len(result.Timeline))

	// Output results
	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// buildTimeline converts store events to trace timeline events.
// When commandFilter is set, only includes invocations of that command
// and their corresponding completions.
func buildTimeline(events []store.Event, commandFilter string) []TraceEvent {
	timeline := []TraceEvent{}
	depths := make(map[string]int)

	for _, event := range events {
		if commandFilter != "" && event.Command != commandFilter {
			continue
		}

		switch event.Kind {
		case store.EventInvocation:
			inv := event.Invocation
			depths[inv.ID] = inv.Depth
			timeline = append(timeline, TraceEvent{
				Seq:     event.Seq,
				Type:    string(event.Kind),
				ID:      inv.ID,
				Command: event.Command,
				Depth:   inv.Depth,
				Input:   inv.Input,
			})

		case store.EventCompletion:
			comp := event.Completion
			te := TraceEvent{
				Seq:     event.Seq,
				Type:    string(event.Kind),
				ID:      comp.ID,
				Command: event.Command,
				Depth:   depths[comp.InvocationID],
				Outcome: string(comp.Outcome),
				Phase:   comp.Phase,
				Error:   comp.Error,
			}
			if string(comp.Result) != "null" {
				te.Result = comp.Result
			}
			timeline = append(timeline, te)
		}
	}

	return timeline
}

// buildProvenance lists the nested dispatches of a flow.
func buildProvenance(events []store.Event) []ProvenanceEdge {
	commands := make(map[string]string)
	edges := []ProvenanceEdge{}

	for _, event := range events {
		if event.Kind != store.EventInvocation {
			continue
		}
		inv := event.Invocation
		commands[inv.ID] = inv.Command
		if inv.ParentID == "" {
			continue
		}
		edges = append(edges, ProvenanceEdge{
			Parent:        inv.ParentID,
			ParentCommand: commands[inv.ParentID],
			Child:         inv.ID,
			ChildCommand:  inv.Command,
		})
	}
	return edges
}

func buildStats(events []store.Event, shown int) TraceStats {
	stats := TraceStats{TotalEvents: shown}
	for _, event := range events {
		switch event.Kind {
		case store.EventInvocation:
			stats.Invocations++
			stats.MaxDepth = max(stats.MaxDepth, event.Invocation.Depth)
		case store.EventCompletion:
			stats.Completions++
			if event.Completion.Outcome == "error" {
				stats.Errors++
			}
		}
	}
	stats.IsComplete = stats.Invocations == stats.Completions
	return stats
}

func listFlows(ctx context.Context, opts *TraceOptions, st *store.Store, cmd *cobra.Command) error {
	flows, err := st.ListFlows(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list flows", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(flows)
	}

	w := cmd.OutOrStdout()
	if len(flows) == 0 {
		fmt.Fprintln(w, "No flows recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FLOW\tCOMMAND\tINVOCATIONS\tERRORS")
	for _, f := range flows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", f.FlowToken, f.Command, f.Invocations, f.Errors)
	}
	return tw.Flush()
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as human-readable text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Flow: %s\n\n", result.FlowToken)
	fmt.Fprintln(w, "Timeline:")

	for _, event := range result.Timeline {
		indent := strings.Repeat("  ", max(event.Depth-1, 0))
		switch event.Type {
		case "invocation":
			fmt.Fprintf(w, "  [%d] %s→ %s %s\n", event.Seq, indent, event.Command, event.Input)
		case "completion":
			if event.Outcome == "error" {
				fmt.Fprintf(w, "  [%d] %s✗ %s failed in %s: %s\n", event.Seq, indent, event.Command, event.Phase, event.Error)
				continue
			}
			if event.Result != nil {
				fmt.Fprintf(w, "  [%d] %s← %s %s\n", event.Seq, indent, event.Command, event.Result)
			} else {
				fmt.Fprintf(w, "  [%d] %s← %s\n", event.Seq, indent, event.Command)
			}
		}
		if verbose {
			fmt.Fprintf(w, "        id: %s\n", event.ID)
		}
	}

	if len(result.Provenance) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Dispatched:")
		for _, edge := range result.Provenance {
			fmt.Fprintf(w, "  %s → %s\n", edge.ParentCommand, edge.ChildCommand)
		}
	}

	fmt.Fprintln(w)
	status := "complete"
	if !result.Stats.IsComplete {
		status = "incomplete"
	}
	fmt.Fprintf(w, "Stats: %d invocations, %d completions, %d errors, max depth %d (%s)\n",
		result.Stats.Invocations, result.Stats.Completions, result.Stats.Errors, result.Stats.MaxDepth, status)
	return nil
}
