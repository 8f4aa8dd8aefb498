package main

import (
	"os"

	"github.com/spf13/pflag"
)

// githubActionsProfile adapts the run defaults when running as a GitHub Actions step.
// Explicit flags always win.
func (f *runFlags) githubActionsProfile(flags *pflag.FlagSet) error {
	if os.Getenv("GITHUB_ACTIONS") != "true" {
		return nil
	}

	if !flags.Changed("branch") && os.Getenv(envPrefix+"BRANCH") == "" {
		f.Pipeline.Branch = os.Getenv("GITHUB_HEAD_REF")
		if f.Pipeline.Branch == "" {
			f.Pipeline.Branch = os.Getenv("GITHUB_REF_NAME")
		}
	}

	if summary := os.Getenv("GITHUB_STEP_SUMMARY"); summary != "" {
		if !flags.Changed("report") && os.Getenv(envPrefix+"REPORT") == "" {
			f.Report = "markdown"
		}

		if !flags.Changed("report-output") && os.Getenv(envPrefix+"REPORT_OUTPUT") == "" {
			f.ReportOutput = summary
		}
	}

	return nil
}
