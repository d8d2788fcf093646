package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ratelimitfilter/internal/config"
)

var envdocCmd = &cobra.Command{
	Use:   "envdoc",
	Short: "Print the supported environment variables as Markdown",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "# Environment Variables")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Environment variables override values from the configuration file.")
		fmt.Fprintln(out)
		for _, example := range config.EnvExample(&config.Config{}) {
			fmt.Fprintf(out, "- `%s`\n", example)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "```bash")
		fmt.Fprintln(out, "# Share counters through Redis")
		fmt.Fprintf(out, "export %s_STORAGE_TYPE=redis\n", config.EnvPrefix)
		fmt.Fprintf(out, "export %s_STORAGE_REDIS_HOST=redis.internal\n", config.EnvPrefix)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "# Admit requests when the store is unreachable")
		fmt.Fprintf(out, "export %s_FILTER_FAILUREMODE=open\n", config.EnvPrefix)
		fmt.Fprintln(out, "```")
	},
}
