package cli

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
)

func init() {
	devicesListCmd.Flags().StringVar(&devicesStatus, "status", "", "Filter by status (online, offline, training, error)")
	devicesCmd.AddCommand(devicesListCmd)
	devicesCmd.AddCommand(devicesShowCmd)
	devicesCmd.AddCommand(devicesRmCmd)
	rootCmd.AddCommand(devicesCmd)
}

var devicesStatus string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Inspect and manage the device fleet",
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered devices",
	RunE:  runDevicesList,
}

var devicesShowCmd = &cobra.Command{
	Use:   "show <device-id>",
	Short: "Show one device",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesShow,
}

var devicesRmCmd = &cobra.Command{
	Use:   "rm <device-id>",
	Short: "Remove a device from the registry",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesRm,
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	path := "/api/v1/devices"
	if devicesStatus != "" {
		path += "?status=" + url.QueryEscape(devicesStatus)
	}

	var resp struct {
		Devices []domain.Device `json:"devices"`
	}
	if err := newClient().get(path, &resp); err != nil {
		return err
	}
	if len(resp.Devices) == 0 {
		fmt.Println("No devices registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMODEL\tSTATUS\tBATTERY\tLAST SEEN")
	for _, d := range resp.Devices {
		battery := "-"
		if d.BatteryLevel != nil {
			battery = fmt.Sprintf("%.0f%%", *d.BatteryLevel*100)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Name, d.DeviceModel, d.Status, battery,
			d.LastSeenAt.Local().Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runDevicesShow(cmd *cobra.Command, args []string) error {
	var dev domain.Device
	if err := newClient().get("/api/v1/devices/"+args[0], &dev); err != nil {
		return err
	}

	fmt.Printf("ID:          %s\n", dev.ID)
	fmt.Printf("Name:        %s\n", dev.Name)
	fmt.Printf("Model:       %s (%s)\n", dev.DeviceModel, dev.Chip)
	fmt.Printf("OS:          %s\n", dev.OSVersion)
	fmt.Printf("Status:      %s\n", dev.Status)
	if dev.BatteryLevel != nil {
		fmt.Printf("Battery:     %.0f%% (%s)\n", *dev.BatteryLevel*100, dev.BatteryState)
	}
	fmt.Printf("Registered:  %s\n", dev.RegisteredAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Last seen:   %s\n", dev.LastSeenAt.Local().Format("2006-01-02 15:04:05"))
	for name, value := range dev.Metrics {
		fmt.Printf("  %s: %.2f\n", name, value)
	}
	return nil
}

func runDevicesRm(cmd *cobra.Command, args []string) error {
	if err := newClient().delete("/api/v1/devices/" + args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed device %s\n", args[0])
	return nil
}
