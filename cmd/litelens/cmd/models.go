package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/MeKo-Tech/litelens/internal/models"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Show where the detector looks for its model files",
	Long: `Show the model files the object detector uses, where they resolve to and
whether they are present. Relative paths that do not exist are looked up in
the models directory ($` + models.EnvModelsDir + ` or ./models).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dc := resolveDetectorPaths(GetConfig().ToDetectorConfig())
		paths := map[string]string{
			models.TypeDetection: dc.ModelPath,
			models.TypeLabels:    dc.LabelsPath,
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "NAME\tTYPE\tSTATUS\tPATH")
		for _, m := range models.ListAvailableModels() {
			path := paths[m.Type]
			status := "present"
			if err := models.ValidateModelExists(path); err != nil {
				status = "missing"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, m.Type, status, path)
		}
		_, _ = fmt.Fprintf(tw, "\nModels directory: %s\n", models.GetModelsDir(""))
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
