package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-midipreset/midi"
	"go-midipreset/preset"
)

func newSendCmd(a *app) *cobra.Command {
	var device int

	cmd := &cobra.Command{
		Use:   "send <preset-id>",
		Short: "Send a stored preset",
		Long:  `Sends a stored preset to its device, or to --device. Interrupting stops the sequence at the next message.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("device") {
				if device < 0 {
					return fmt.Errorf("invalid device index %d", device)
				}
				p.Device = device
			}

			t := &tally{}
			d, err := a.dispatcher(progressHooks(cmd.OutOrStdout(), a.theme, t))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s -> device %d\n",
				a.theme.Card(p.Colour).Render(p.Label), p.ID, p.Device)
			preset.Send(cmd.Context(), d, p)
			if err := cmd.Context().Err(); err != nil {
				return fmt.Errorf("interrupted: %w", err)
			}
			return t.err(len(p.Messages))
		},
	}
	cmd.Flags().IntVarP(&device, "device", "d", 0, "output port index (default: the preset's device)")
	return cmd
}

func newFireCmd(a *app) *cobra.Command {
	var device int

	cmd := &cobra.Command{
		Use:   "fire <message>...",
		Short: "Send ad-hoc messages",
		Long: `Sends messages given on the command line, in order. Channels are 1-16.

  pc:<channel>:<program>
  cc:<channel>:<controller>:<value>
  delay:<ms>  (or d:<ms>)
  empty`,
		Example: `  midipreset fire pc:1:10 delay:50 cc:1:34:2`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := midi.ParseMessages(args)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("device") {
				device = a.cfg.Device
			}
			if device < 0 {
				return fmt.Errorf("invalid device index %d", device)
			}

			t := &tally{}
			d, err := a.dispatcher(progressHooks(cmd.OutOrStdout(), a.theme, t))
			if err != nil {
				return err
			}
			d.Dispatch(cmd.Context(), device, msgs)
			if err := cmd.Context().Err(); err != nil {
				return fmt.Errorf("interrupted: %w", err)
			}
			return t.err(len(msgs))
		},
	}
	cmd.Flags().IntVarP(&device, "device", "d", 0, "output port index (default: config device)")
	return cmd
}
