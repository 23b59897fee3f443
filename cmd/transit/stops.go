package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Searches stops by name, id or code",
	Args:  cobra.MinimumNArgs(1),
	RunE:  search,
}

var nearbyCmd = &cobra.Command{
	Use:   "nearby <lat> <lon>",
	Short: "Lists stops near a geographical location",
	Args:  cobra.ExactArgs(2),
	RunE:  nearby,
}

var searchLimit int

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "Limit the number of stops returned")
	nearbyCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "Limit the number of stops returned")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(nearbyCmd)
}

func search(cmd *cobra.Command, args []string) error {
	service, err := NewService()
	if err != nil {
		return err
	}

	resp, err := service.SearchStops(cmd.Context(), strings.Join(args, " "), searchLimit)
	if err != nil {
		return err
	}

	for _, stop := range resp.Results {
		modes := strings.Join(stop.TransportModes, ",")
		hints := strings.Join(stop.LineHints, " ")
		fmt.Printf("%s: %s [%s] %s\n", stop.ID, stop.Name, modes, hints)
	}
	return nil
}

func nearby(cmd *cobra.Command, args []string) error {
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid lat: %w", err)
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid lon: %w", err)
	}

	service, err := NewService()
	if err != nil {
		return err
	}

	resp, err := service.SearchNearby(cmd.Context(), lat, lon, searchLimit)
	if err != nil {
		return err
	}

	for _, result := range resp.Results {
		fmt.Printf("%s: %s (%.0fm)\n", result.Stop.ID, result.Stop.Name, result.DistanceMeters)
	}
	return nil
}
