package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"buswidget.dev/transit/model"
)

var departuresCmd = &cobra.Command{
	Use:   "departures <stop_id>",
	Short: "Lists upcoming departures from a stop",
	Args:  cobra.ExactArgs(1),
	RunE:  departures,
}

var logicalCmd = &cobra.Command{
	Use:   "logical <logical_stop_id>",
	Short: "Lists upcoming departures from a Cityway logical stop",
	Args:  cobra.ExactArgs(1),
	RunE:  logicalDepartures,
}

var (
	maxMinutes int
	limit      int
	lines      []string
)

func init() {
	for _, cmd := range []*cobra.Command{departuresCmd, logicalCmd} {
		cmd.Flags().IntVarP(&maxMinutes, "max-minutes", "m", 60, "How far ahead to look, in minutes")
		cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Limit the number of departures returned")
		cmd.Flags().StringSliceVarP(&lines, "line", "L", []string{}, "Restrict to specific lines")
	}
}

func departures(cmd *cobra.Command, args []string) error {
	service, err := NewService()
	if err != nil {
		return err
	}

	resp, err := service.GetDepartures(cmd.Context(), args[0], limit, maxMinutes, lines)
	if err != nil {
		return err
	}
	if resp.Stop == nil {
		return fmt.Errorf("unknown stop %q", args[0])
	}

	fmt.Printf("%s (%s)\n", resp.Stop.Name, resp.Stop.ID)
	printDepartures(resp.Departures)
	return nil
}

func logicalDepartures(cmd *cobra.Command, args []string) error {
	var logicalStopID int64
	if _, err := fmt.Sscanf(args[0], "%d", &logicalStopID); err != nil || logicalStopID <= 0 {
		return fmt.Errorf("logical stop id must be a positive integer")
	}

	service, err := NewService()
	if err != nil {
		return err
	}

	resp, err := service.GetLogicalStopDepartures(cmd.Context(), logicalStopID, limit, maxMinutes, lines)
	if err != nil {
		return err
	}

	if resp.Stop != nil {
		fmt.Printf("%s (%s)\n", resp.Stop.Name, resp.Stop.ID)
	}
	printDepartures(resp.Departures)
	return nil
}

func printDepartures(departures []model.Departure) {
	for _, d := range departures {
		when := time.Unix(d.Unix, 0).Local().Format("15:04")
		marker := " "
		if d.IsRealtime {
			marker = "*"
		}
		fmt.Printf("%s%-6s %s  %s (%dm)\n", marker, d.Line, when, d.Destination, d.MinutesUntil)
	}
}
