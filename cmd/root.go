package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"promotectl/pkg/logging"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "promotectl",
	Short: "Zero-downtime blue-green promotion for the chat stack",
	Long: `promotectl promotes a freshly built application environment ("blue" or
"green") to serve live traffic: it starts the target slot, gates on health
checks and smoke tests, atomically switches the reverse proxy upstream, and
drains the old slot. Any gated failure before the switch rolls back by
stopping the target, leaving the previously active slot untouched.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid arguments, failed promotions)
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if verbose {
			level = logging.LevelDebug
		}
		logging.Init(level, os.Stderr)
	},
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v // Set cobra's version field as well
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Set up version template
	rootCmd.SetVersionTemplate(`{{printf "promotectl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newPromoteCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newSmokeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
