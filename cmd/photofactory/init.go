package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func (c *cli) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the photofactory version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.emit(map[string]string{"version": version, "module": modulePath}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "photofactory %s\nmodule: %s\n", version, modulePath)
				return err
			})
		},
	}
}

// newInitCmd creates the config file and the store. Both are also created on
// first use by any other command; init makes the locations explicit.
func (c *cli) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration file and the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				out := map[string]string{"config_dir": c.configDir, "data_dir": c.dataDir}
				return c.emit(out, func(w io.Writer) error {
					fmt.Fprintln(w, "photofactory initialized")
					fmt.Fprintln(w, "  config:", c.configDir)
					_, err := fmt.Fprintln(w, "  data:  ", c.dataDir)
					return err
				})
			})
		},
	}
}
