package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entity counts from the query cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		adapter, _, err := openAdapter(cmd.Context())
		if err != nil {
			return err
		}
		defer adapter.Close()

		counts, err := adapter.Counts()
		if err != nil {
			return err
		}
		printHeader("weft stats")
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%-14s %d\n", name, counts[name])
		}
		return nil
	},
}
