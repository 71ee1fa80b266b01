// cmd/siggenctl/control.go
package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"siggen-service/internal/app"
	"siggen-service/internal/model"
	"siggen-service/internal/protocol"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <data>",
	Short: "Write raw data to the device",
	Long: `Write data to the active port exactly as given.

Use --frame to append the profile's line terminator, e.g.

  siggenctl write --frame WMW01`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		frame, _ := cmd.Flags().GetBool("frame")
		return withSession(cmd, func(ctx context.Context, device *app.Device) error {
			data := args[0]
			if frame {
				data = device.Encoder.Frame(data).String()
			}
			return device.Session.Write(ctx, data)
		})
	},
}

// setCmd represents the set command
var setCmd = &cobra.Command{
	Use:   "set <parameter> <channel> <value>",
	Short: "Set a channel parameter",
	Long: `Set one numeric parameter of a channel.

Parameters: frequency (Hz), amplitude (V), offset (V), duty (%), phase (deg),
attenuation (step).`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := parseChannel(args[1])
		if err != nil {
			return err
		}

		param := strings.ToLower(args[0])
		if param == "attenuation" {
			step, err := strconv.Atoi(args[2])
			if err != nil {
				return model.InvalidParameter("attenuation step %q is not an integer", args[2])
			}
			return withSession(cmd, func(ctx context.Context, device *app.Device) error {
				return device.Session.SetAttenuation(ctx, ch, step)
			})
		}

		value, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return model.InvalidParameter("value %q is not a number", args[2])
		}

		return withSession(cmd, func(ctx context.Context, device *app.Device) error {
			s := device.Session
			switch param {
			case "frequency", "freq":
				return s.SetFrequency(ctx, ch, value)
			case "amplitude", "amp":
				return s.SetAmplitude(ctx, ch, value)
			case "offset":
				return s.SetOffset(ctx, ch, value)
			case "duty", "duty-cycle":
				return s.SetDutyCycle(ctx, ch, value)
			case "phase":
				return s.SetPhase(ctx, ch, value)
			default:
				return model.InvalidParameter("unknown parameter %q", args[0])
			}
		})
	},
}

// outputCmd represents the output command
var outputCmd = &cobra.Command{
	Use:       "output <channel> <on|off>",
	Short:     "Enable or disable a channel output",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := parseChannel(args[0])
		if err != nil {
			return err
		}

		var enable bool
		switch strings.ToLower(args[1]) {
		case "on", "1", "true":
			enable = true
		case "off", "0", "false":
		default:
			return model.InvalidParameter("output state %q must be on or off", args[1])
		}

		return withSession(cmd, func(ctx context.Context, device *app.Device) error {
			return device.Session.EnableOutput(ctx, ch, enable)
		})
	},
}

// waveformCmd represents the waveform command
var waveformCmd = &cobra.Command{
	Use:   "waveform <channel> <shape>",
	Short: "Select the wave shape of a channel",
	Long: fmt.Sprintf(`Select the wave shape by name or by device code.

Shapes: %s`, waveformNames()),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := parseChannel(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, device *app.Device) error {
			w, err := protocol.ParseWaveform(args[1], device.Encoder.Profile())
			if err != nil {
				return err
			}
			return device.Session.SetWaveform(ctx, ch, w)
		})
	},
}

// applyCmd represents the apply command
var applyCmd = &cobra.Command{
	Use:   "apply <channel> <shape> <frequency> <amplitude>",
	Short: "Set waveform, frequency and amplitude of a channel",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := parseChannel(args[0])
		if err != nil {
			return err
		}
		hz, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return model.InvalidParameter("frequency %q is not a number", args[2])
		}
		volts, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return model.InvalidParameter("amplitude %q is not a number", args[3])
		}

		return withSession(cmd, func(ctx context.Context, device *app.Device) error {
			w, err := protocol.ParseWaveform(args[1], device.Encoder.Profile())
			if err != nil {
				return err
			}
			return device.Session.Apply(ctx, ch, w, hz, volts)
		})
	},
}

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Switch every channel output off",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, device *app.Device) error {
			return device.Session.Stop(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(waveformCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(stopCmd)

	writeCmd.Flags().BoolP("frame", "f", false, "Append the profile line terminator")
}

func parseChannel(s string) (protocol.Channel, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, model.InvalidParameter("channel %q is not a number", s)
	}
	return protocol.Channel(n), nil
}

func waveformNames() string {
	names := make([]string, len(protocol.Waveforms))
	for i, w := range protocol.Waveforms {
		names[i] = string(w)
	}
	return strings.Join(names, ", ")
}
