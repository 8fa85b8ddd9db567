package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/discussiond/engine/internal/config"
	"github.com/discussiond/engine/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs <room-id>",
	Short: "Aggregate and export a room's debug log",
	Long: `logs reads the process debug.log under the configured logging
directory, keeps the entries tagged with the given room ID, applies the
requested filters, and either prints the result or exports it to a file
in json, text, or csv format.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().String("level", "", "minimum level to include (DEBUG, INFO, WARN, ERROR)")
	logsCmd.Flags().String("agent", "", "filter to entries from this agent ID")
	logsCmd.Flags().String("phase", "", "filter to entries from this phase")
	logsCmd.Flags().String("contains", "", "filter to entries whose message contains this substring")
	logsCmd.Flags().String("since", "", "filter to entries at or after this RFC3339 timestamp")
	logsCmd.Flags().String("until", "", "filter to entries at or before this RFC3339 timestamp")
	logsCmd.Flags().String("format", "text", "output format, for stdout or --out: json, text, or csv")
	logsCmd.Flags().String("out", "", "write the filtered entries to this file instead of stdout")

	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	roomID := args[0]

	entries, err := logging.AggregateLogs(cfg.Logging.Dir)
	if err != nil {
		return fmt.Errorf("aggregating logs for room %s: %w", roomID, err)
	}

	filter, err := logFilterFromFlags(cmd)
	if err != nil {
		return err
	}
	filter.RoomID = roomID
	entries = logging.FilterLogs(entries, filter)

	format, _ := cmd.Flags().GetString("format")

	outPath, _ := cmd.Flags().GetString("out")
	if outPath == "" {
		return logging.WriteLogEntries(os.Stdout, entries, format)
	}

	if err := logging.ExportLogEntries(entries, outPath, format); err != nil {
		return fmt.Errorf("exporting logs: %w", err)
	}

	fmt.Printf("wrote %d log entries to %s\n", len(entries), outPath)
	return nil
}

func logFilterFromFlags(cmd *cobra.Command) (logging.LogFilter, error) {
	level, _ := cmd.Flags().GetString("level")
	agentID, _ := cmd.Flags().GetString("agent")
	phase, _ := cmd.Flags().GetString("phase")
	contains, _ := cmd.Flags().GetString("contains")
	since, _ := cmd.Flags().GetString("since")
	until, _ := cmd.Flags().GetString("until")

	filter := logging.LogFilter{
		Level:           level,
		AgentID:         agentID,
		Phase:           phase,
		MessageContains: contains,
	}

	if since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return filter, fmt.Errorf("parsing --since: %w", err)
		}
		filter.StartTime = t
	}
	if until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return filter, fmt.Errorf("parsing --until: %w", err)
		}
		filter.EndTime = t
	}

	return filter, nil
}
