package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL     string
	userID        int64
	operatorToken string
	days          int
	sizes         []int

	rootCmd = &cobra.Command{
		Use:   "birthday-client",
		Short: "A command line client for the birthday reminder service",
	}

	importCmd = &cobra.Command{
		Use:   "import [file]",
		Short: "Imports the contacts of a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Writes all contacts as CSV to standard output",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	upcomingCmd = &cobra.Command{
		Use:   "upcoming",
		Short: "Lists the birthdays of the next days",
		Args:  cobra.NoArgs,
		RunE:  runUpcoming,
	}
	remindCmd = &cobra.Command{
		Use:   "remind",
		Short: "Runs the reminder batch now",
		Args:  cobra.NoArgs,
		RunE:  runRemind,
	}
	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Measures the average duration of contact requests in microseconds",
		Args:  cobra.NoArgs,
		RunE:  runBench,
	}
)

// Usage examples on the command line:
// > go run . import contacts.csv --user 1
// > go run . upcoming --days 7
// > go run . remind --token s3cret
// > go run . bench --sizes 100,1000
func main() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the service")
	rootCmd.PersistentFlags().Int64Var(&userID, "user", 1, "id of the user to act for")
	remindCmd.Flags().StringVar(&operatorToken, "token", os.Getenv("OPERATOR_TOKEN"), "operator token of the service")
	upcomingCmd.Flags().IntVar(&days, "days", 30, "number of days to look ahead")
	benchCmd.Flags().IntSliceVar(&sizes, "sizes", []int{1000, 5000, 10000}, "number of requests per round")

	rootCmd.AddCommand(importCmd, exportCmd, upcomingCmd, remindCmd, benchCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
