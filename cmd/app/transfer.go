package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ArticlesCatalog/internal/config"
)

const fileFlag = "file"

func newImportCommand() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import articles from an xlsx file",
		Long: `Import articles from a spreadsheet in one transaction, the same way as POST /api/articles/import/.

The result (created, updated and per-row errors) is printed as JSON.`,
		Args: cobra.NoArgs,
		RunE: runImport,
	}
	importCmd.Flags().String(fileFlag, "", "Path to the .xlsx file to import (required)")
	return importCmd
}

func newExportCommand() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export all articles to an xlsx file",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	exportCmd.Flags().String(fileFlag, "articles.xlsx", "Where to write the exported .xlsx file")
	return exportCmd
}

func newEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List supported environment variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := config.Describe()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
}

func runImport(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString(fileFlag)
	if err != nil {
		return err
	}
	if path == "" {
		return errors.New("file is required (use --file flag)")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.service.Import(cmd.Context(), f)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runExport(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString(fileFlag)
	if err != nil {
		return err
	}
	if path == "" {
		return errors.New("file is required (use --file flag)")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := a.service.Export(cmd.Context(), f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("export failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported articles to %s\n", path)
	return err
}
