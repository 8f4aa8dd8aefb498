package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/raffis/matrun/internal/styles"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE:  runVersion,
}

type versionFlags struct {
	json bool
}

var versionArgs = versionFlags{}

func init() {
	versionCmd.Flags().BoolVarP(&versionArgs.json, "json", "", !term.IsTerminal(int(os.Stdout.Fd())), "Print the version as json")
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	if versionArgs.json {
		b, err := json.Marshal(map[string]string{
			"version": version,
			"sha":     commit,
			"date":    date,
		})
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(stdout, "%s\n", b)
		return err
	}

	_, err := fmt.Fprintf(stdout, "%s\n%s\n\n%s\t%s\n%s\t%s\n%s\t%s\n",
		styles.Bold.Render("MATRUN"),
		"Matrix driven pipeline runner",
		styles.Bold.Render("Version:"),
		version,
		styles.Bold.Render("Commit SHA:"),
		commit,
		styles.Bold.Render("Build date:"),
		date,
	)

	return err
}
