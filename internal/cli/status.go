package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := newClient()

	// /health answers 503 when degraded, with the same body shape.
	resp, err := c.http.Get(c.base + "/health")
	if err != nil {
		return fmt.Errorf("cannot reach server at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	var detail map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return fmt.Errorf("unexpected health response: %w", err)
	}

	fmt.Printf("Server:  %s\n", c.base)
	fmt.Printf("Status:  %s\n", detail["status"])
	delete(detail, "status")
	if len(detail) == 0 {
		return nil
	}

	names := make([]string, 0, len(detail))
	for name := range detail {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tRESULT")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\n", name, detail[name])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server is degraded")
	}
	return nil
}
