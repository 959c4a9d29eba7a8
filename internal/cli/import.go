package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/weft-labs/weft/internal/storage"
)

var (
	importIn         string
	importMode       string
	importOnConflict string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a full snapshot produced by 'weft export all'",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(importIn)
		if err != nil {
			return err
		}
		var data storage.ExportData
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("parse %s: %w", importIn, err)
		}

		adapter, _, err := openAdapter(cmd.Context())
		if err != nil {
			return err
		}
		defer adapter.Close()

		result, err := adapter.ImportData(&data, storage.ImportOptions{
			Mode:               importMode,
			ConflictResolution: importOnConflict,
		})
		if err != nil {
			return err
		}

		fmt.Println(color.GreenString("✓ import complete"))
		fmt.Printf("Workspaces:    %d\n", result.WorkspacesImported)
		fmt.Printf("Sessions:      %d\n", result.SessionsImported)
		fmt.Printf("States:        %d\n", result.StatesImported)
		fmt.Printf("Traces:        %d\n", result.TracesImported)
		fmt.Printf("Conversations: %d\n", result.ConversationsImported)
		fmt.Printf("Messages:      %d\n", result.MessagesImported)
		fmt.Printf("Skipped:       %d\n", result.Skipped)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVarP(&importIn, "in", "i", "", "Snapshot file (required)")
	importCmd.Flags().StringVar(&importMode, "mode", storage.ImportModeMerge, "Import mode: merge|replace")
	importCmd.Flags().StringVar(&importOnConflict, "on-conflict", storage.ConflictSkip, "Conflict resolution: skip|overwrite")
	importCmd.MarkFlagRequired("in")
}
