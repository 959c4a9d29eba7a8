package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/weft-labs/weft/internal/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export engine data",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var (
	exportOut           string
	exportWorkspace     string
	exportSkipSystem    bool
	exportSkipToolCalls bool
)

var exportFinetuneCmd = &cobra.Command{
	Use:   "finetune",
	Short: "Write conversations as line-delimited fine-tuning records",
	RunE: func(cmd *cobra.Command, args []string) error {
		adapter, _, err := openAdapter(cmd.Context())
		if err != nil {
			return err
		}
		defer adapter.Close()

		filter := storage.DefaultFineTuneFilter()
		filter.IncludeSystem = !exportSkipSystem
		filter.IncludeTool = !exportSkipToolCalls
		filter.WorkspaceID = exportWorkspace

		n, err := adapter.ExportConversationsToFile(exportOut, filter)
		if err != nil {
			return err
		}
		fmt.Println(color.GreenString("✓ wrote %d conversations to %s", n, exportOut))
		return nil
	},
}

var exportAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Write a full versioned snapshot of every workspace and conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		adapter, _, err := openAdapter(cmd.Context())
		if err != nil {
			return err
		}
		defer adapter.Close()

		data, err := adapter.ExportAllData()
		if err != nil {
			return err
		}
		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		defer f.Close()
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data); err != nil {
			return err
		}
		fmt.Println(color.GreenString("✓ wrote %d workspaces, %d conversations to %s",
			len(data.Workspaces), len(data.Conversations), exportOut))
		return nil
	},
}

var exportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Write per-workspace rollups as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		adapter, _, err := openAdapter(cmd.Context())
		if err != nil {
			return err
		}
		defer adapter.Close()

		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := adapter.ExportWorkspaceSummaries(f)
		if err != nil {
			return err
		}
		fmt.Println(color.GreenString("✓ wrote %d workspace summaries to %s", n, exportOut))
		return nil
	},
}

func init() {
	exportCmd.PersistentFlags().StringVarP(&exportOut, "out", "o", "weft-export.json", "Output file")
	exportFinetuneCmd.Flags().StringVar(&exportWorkspace, "workspace", "", "Restrict to one workspace")
	exportFinetuneCmd.Flags().BoolVar(&exportSkipSystem, "skip-system", false, "Exclude system messages")
	exportFinetuneCmd.Flags().BoolVar(&exportSkipToolCalls, "skip-tool", false, "Exclude tool messages")
	exportCmd.AddCommand(exportFinetuneCmd)
	exportCmd.AddCommand(exportAllCmd)
	exportCmd.AddCommand(exportSummaryCmd)
}
