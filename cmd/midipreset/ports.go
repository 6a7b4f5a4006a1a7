package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-midipreset/midi"
)

func newPortsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List MIDI output ports",
		Long:  `Lists the output ports the driver reports right now. The index is what presets and --device refer to; it can change when devices are plugged or unplugged.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := midi.ListOutputs(cmd.Context(), a.ports)
			if err != nil {
				return fmt.Errorf("list ports: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, "no output ports")
				return nil
			}
			fmt.Fprintln(out, heading(a.theme, "INDEX  NAME"))
			for _, p := range ports {
				fmt.Fprintf(out, "%5d  %s\n", p.Index, p.Name)
			}
			return nil
		},
	}
}
