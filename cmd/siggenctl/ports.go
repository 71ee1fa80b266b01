// cmd/siggenctl/ports.go
package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"siggen-service/internal/discovery"
	"siggen-service/internal/model"
	"siggen-service/internal/utils"
)

// portsCmd represents the ports command
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List candidate ports",
	Long: `List the ports discovery would probe, in probe order.

The simulated TEST port is always listed last. With --detailed, USB
vendor/product IDs and serial numbers are shown when the OS reports them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		device, _, logger, err := newDevice(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer utils.CloseLogger(logger)

		out := cmd.OutOrStdout()
		detailed, _ := cmd.Flags().GetBool("detailed")
		if !detailed {
			for _, port := range device.Session.ListCandidates(cmd.Context()) {
				fmt.Fprintln(out, port)
			}
			return nil
		}

		renderPortTable(out, device.Session.DescribePorts(cmd.Context()))
		return nil
	},
}

// reconnectCmd represents the reconnect command
var reconnectCmd = &cobra.Command{
	Use:   "reconnect",
	Short: "Run discovery and show every probe",
	RunE: func(cmd *cobra.Command, args []string) error {
		device, cfg, logger, err := newDevice(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer utils.CloseLogger(logger)
		defer device.Registry.EvictAll()

		baud := baudRate
		if baud <= 0 {
			baud = cfg.Device.BaudRate
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Device.OperationTimeout)
		defer cancel()

		result, err := device.Session.Reconnect(ctx, baud)
		if result != nil {
			renderAttempts(cmd.OutOrStdout(), result)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(reconnectCmd)

	portsCmd.Flags().BoolP("detailed", "d", false, "Display USB details in a styled table")
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(lipgloss.Color("240"))

	cellStyle = lipgloss.NewStyle().PaddingRight(2)
)

// renderPortTable renders port details in a static table
func renderPortTable(out io.Writer, ports []model.PortInfo) {
	fmt.Fprintf(out, "Found %d candidate port(s):\n\n", len(ports))

	header := fmt.Sprintf("%-20s %-6s %-6s %-8s %-16s %s", "Port", "VID", "PID", "Bridge", "Serial", "Product")
	fmt.Fprintln(out, headerStyle.Render(header))

	for _, p := range ports {
		product := p.Product
		if p.Simulated {
			product = "simulated"
		}
		row := fmt.Sprintf("%-20s %-6s %-6s %-8s %-16s %s", p.Name, p.VID, p.PID, p.Bridge, p.SerialNumber, product)
		if p.LikelyGenerator {
			row = successStyle.Render(row)
		}
		fmt.Fprintln(out, cellStyle.Render(row))
	}
}

// renderAttempts renders the probe log of a discovery run
func renderAttempts(out io.Writer, result *discovery.Result) {
	header := fmt.Sprintf("%-20s %-10s %s", "Port", "State", "Response / Error")
	fmt.Fprintln(out, headerStyle.Render(header))

	for _, a := range result.Attempts {
		detail := a.Response
		style := successStyle
		if a.Error != "" {
			detail = a.Error
			style = failStyle
		} else if a.State != discovery.StateAccepted {
			style = dimStyle
		}
		row := fmt.Sprintf("%-20s %-10s %s", a.Port, style.Render(string(a.State)), detail)
		fmt.Fprintln(out, cellStyle.Render(row))
	}

	fmt.Fprintf(out, "\nConnected to %s (%s)\n", connectedStyle.Render(result.Port), result.State)
}
