package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
)

func init() {
	modelsCreateCmd.Flags().StringVar(&modelArch, "arch", "", "Model architecture (default mnist)")
	modelsCreateCmd.Flags().StringVar(&modelParent, "parent", "", "Parent model id for fine-tuning lineage")

	modelsCmd.AddCommand(modelsCreateCmd, modelsListCmd, modelsShowCmd, modelsRmCmd, modelsArchCmd)
	rootCmd.AddCommand(modelsCmd)
}

var (
	modelArch   string
	modelParent string
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage federated models",
}

var modelsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a named model",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsCreate,
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List models",
	RunE:  runModelsList,
}

var modelsShowCmd = &cobra.Command{
	Use:   "show <model-id>",
	Short: "Show one model",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsShow,
}

var modelsRmCmd = &cobra.Command{
	Use:   "rm <model-id>",
	Short: "Delete a model and its stored weights",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsRm,
}

var modelsArchCmd = &cobra.Command{
	Use:   "architectures",
	Short: "List supported architectures",
	RunE:  runModelsArchitectures,
}

func runModelsCreate(cmd *cobra.Command, args []string) error {
	body := map[string]any{"name": args[0]}
	if modelArch != "" {
		body["architecture"] = modelArch
	}
	if modelParent != "" {
		body["parent_model_id"] = modelParent
	}

	var model domain.Model
	if err := newClient().post("/api/v1/models", body, &model); err != nil {
		return err
	}
	fmt.Printf("Created model %s (%s, %s)\n", model.ID, model.Name, model.Architecture)
	return nil
}

func runModelsList(cmd *cobra.Command, args []string) error {
	var resp struct {
		Models []domain.Model `json:"models"`
	}
	if err := newClient().get("/api/v1/models", &resp); err != nil {
		return err
	}
	if len(resp.Models) == 0 {
		fmt.Println("No models.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tARCH\tVERSION\tSTATUS")
	for _, m := range resp.Models {
		fmt.Fprintf(w, "%s\t%s\t%s\tv%d\t%s\n", m.ID, m.Name, m.Architecture, m.Version, m.Status)
	}
	return w.Flush()
}

func runModelsShow(cmd *cobra.Command, args []string) error {
	var model domain.Model
	if err := newClient().get("/api/v1/models/"+args[0], &model); err != nil {
		return err
	}

	fmt.Printf("ID:            %s\n", model.ID)
	fmt.Printf("Name:          %s\n", model.Name)
	fmt.Printf("Architecture:  %s\n", model.Architecture)
	fmt.Printf("Version:       v%d\n", model.Version)
	fmt.Printf("Status:        %s\n", model.Status)
	if model.ParentModelID != nil {
		fmt.Printf("Parent:        %s\n", model.ParentModelID)
	}
	fmt.Printf("Updated:       %s\n", model.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

func runModelsRm(cmd *cobra.Command, args []string) error {
	if err := newClient().delete("/api/v1/models/" + args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted model %s\n", args[0])
	return nil
}

func runModelsArchitectures(cmd *cobra.Command, args []string) error {
	var resp struct {
		Architectures []struct {
			Key        string `json:"key"`
			Name       string `json:"name"`
			NumClasses int    `json:"num_classes"`
		} `json:"architectures"`
	}
	if err := newClient().get("/api/v1/architectures", &resp); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tNAME\tCLASSES")
	for _, a := range resp.Architectures {
		fmt.Fprintf(w, "%s\t%s\t%d\n", a.Key, a.Name, a.NumClasses)
	}
	return w.Flush()
}
