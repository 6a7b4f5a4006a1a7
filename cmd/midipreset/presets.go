package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-midipreset/midi"
	"go-midipreset/preset"
)

func newPresetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "presets",
		Aliases: []string{"preset", "p"},
		Short:   "Manage stored presets",
	}
	cmd.AddCommand(
		newPresetsListCmd(a),
		newPresetsShowCmd(a),
		newPresetsAddCmd(a),
		newPresetsImportCmd(a),
		newPresetsDeleteCmd(a),
	)
	return cmd
}

func newPresetsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ps) == 0 {
				fmt.Fprintln(out, "no presets")
				return nil
			}
			for _, p := range ps {
				fmt.Fprintf(out, "%s  %-20s device %-3d %d messages\n",
					a.theme.Card(p.Colour).Width(24).Render(p.Label), p.ID, p.Device, len(p.Messages))
			}
			return nil
		},
	}
}

func newPresetsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a preset's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, a.theme.Card(p.Colour).Render(p.Label))
			fmt.Fprintf(out, "id      %s\ndevice  %d\ncolour  %s\n\n", p.ID, p.Device, a.theme.Swatch(p.Colour))
			fmt.Fprintln(out, heading(a.theme, " #  MESSAGE"))
			for i, m := range p.Messages {
				fmt.Fprintf(out, "%2d  %-40s %s\n", i+1, m, midi.FormatMessage(m))
			}
			return nil
		},
	}
}

func newPresetsAddCmd(a *app) *cobra.Command {
	var (
		label  string
		device int
		colour string
	)

	cmd := &cobra.Command{
		Use:   "add <id> <message>...",
		Short: "Create or replace a preset from messages",
		Long:  `Creates or replaces a preset. Messages use the same syntax as fire.`,
		Example: `  midipreset presets add verse --label "Verse" --device 1 --colour teal pc:1:10 delay:50 cc:1:34:2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := midi.ParseMessages(args[1:])
			if err != nil {
				return err
			}
			if device < 0 {
				return fmt.Errorf("invalid device index %d", device)
			}

			p := preset.New(args[0])
			p.Device = device
			p.Messages = msgs
			if label != "" {
				p.Label = label
			}
			if colour != "" {
				if !a.theme.Known(colour) {
					return fmt.Errorf("unknown colour %q", colour)
				}
				p.Colour = colour
			}
			if err := a.store.Save(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d messages)\n", p.ID, len(p.Messages))
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "display label")
	cmd.Flags().IntVarP(&device, "device", "d", 0, "output port index")
	cmd.Flags().StringVar(&colour, "colour", "", "card colour")
	return cmd
}

func newPresetsImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Import presets from YAML or JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, path := range args {
				ps, err := preset.ReadFile(path)
				if err != nil {
					return err
				}
				for _, p := range ps {
					if !a.theme.Known(p.Colour) {
						a.logger.Warn("unknown preset colour", "preset", p.ID, "colour", p.Colour)
					}
					if err := a.store.Save(cmd.Context(), p); err != nil {
						return err
					}
					fmt.Fprintf(out, "imported %s from %s\n", p.ID, path)
				}
			}
			return nil
		},
	}
}

func newPresetsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a preset",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
