package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/MeKo-Tech/litelens/internal/store"
	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/spf13/cobra"
)

// searchesCmd groups the saved search subcommands.
var searchesCmd = &cobra.Command{
	Use:     "searches",
	Aliases: []string{"saved"},
	Short:   "Manage saved searches",
	Long: `List, inspect and delete saved visual searches and translations.

Examples:
  litelens searches list
  litelens searches show 3f2a...
  litelens searches image 3f2a... -o capture.jpg
  litelens searches delete 3f2a...`,
}

var searchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved searches, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSearches(GetConfig())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		list, err := s.List(cmd.Context())
		if err != nil {
			return err
		}
		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			return writeJSONOut(cmd.OutOrStdout(), list)
		}
		return writeSearchTable(cmd.OutOrStdout(), list)
	},
}

var searchesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one saved search as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSearches(GetConfig())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		saved, err := s.Get(cmd.Context(), args[0])
		if err != nil {
			return notFound(args[0], err)
		}
		return writeJSONOut(cmd.OutOrStdout(), saved)
	},
}

var searchesImageCmd = &cobra.Command{
	Use:   "image <id>",
	Short: "Write the capture of a saved search as JPEG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSearches(GetConfig())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		data, err := s.Image(cmd.Context(), args[0])
		if err != nil {
			return notFound(args[0], err)
		}
		outPath, _ := cmd.Flags().GetString("output")
		if outPath == "" || outPath == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil { //nolint:gosec // captures are not secret
			return fmt.Errorf("failed to write image: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", outPath, len(data))
		return nil
	},
}

var searchesDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete saved searches",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSearches(GetConfig())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		for _, id := range args {
			if err := s.Delete(cmd.Context(), id); err != nil {
				return notFound(id, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
		}
		return nil
	},
}

func notFound(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("saved search %s not found", id)
	}
	return err
}

func writeJSONOut(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSearchTable(w io.Writer, list []store.SavedSearch) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No saved searches")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTYPE\tTITLE\tSAVED")
	for _, s := range list {
		title := s.Title
		if s.Type == vision.ResultTextSearch {
			title = fmt.Sprintf("%s -> %s", s.OriginalText, s.TranslatedText)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Type, title, s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(searchesCmd)
	searchesCmd.AddCommand(searchesListCmd, searchesShowCmd, searchesImageCmd, searchesDeleteCmd)
	searchesListCmd.Flags().StringP("format", "f", "text", "output format (text, json)")
	searchesImageCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
}
