package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/weft-labs/weft/internal/model"
)

var workspacesPage int

var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "List workspaces, most recently accessed first",
	RunE: func(cmd *cobra.Command, args []string) error {
		adapter, _, err := openAdapter(cmd.Context())
		if err != nil {
			return err
		}
		defer adapter.Close()

		page, err := adapter.GetWorkspaces(model.ListOptions{
			PaginationParams: model.PaginationParams{Page: workspacesPage, PageSize: 20},
			SortBy:           "lastAccessed",
			SortOrder:        model.SortDesc,
		})
		if err != nil {
			return err
		}

		printHeader("weft workspaces")
		for _, w := range page.Items {
			marker := " "
			if w.IsActive {
				marker = color.GreenString("*")
			}
			last := time.UnixMilli(w.LastAccessed).Format("2006-01-02 15:04")
			fmt.Printf("%s %-36s %-24s %s\n", marker, w.ID, w.Name, last)
		}
		fmt.Printf("\nPage %d/%d (%d total)\n", page.Page, page.TotalPages, page.TotalItems)
		return nil
	},
}

func init() {
	workspacesCmd.Flags().IntVar(&workspacesPage, "page", 1, "Result page")
}
