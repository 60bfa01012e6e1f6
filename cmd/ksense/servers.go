package main

import (
	"fmt"
	"os/exec"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List the configured language servers",
	Args:  cobra.NoArgs,
	RunE:  runServers,
}

func runServers(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	found := color.New(color.FgGreen)
	missing := color.New(color.FgRed)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tEXTENSIONS\tCOMMAND\tSTATUS")
	for _, entry := range e.resolver.Specs() {
		spec := entry.Spec
		command := strings.TrimSpace(spec.Command + " " + strings.Join(spec.Args, " "))
		status := found.Sprint("found")
		if _, err := exec.LookPath(spec.Command); err != nil {
			status = missing.Sprint("not found")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", spec.Key, strings.Join(entry.Extensions, ","), command, status)
	}
	return tw.Flush()
}
