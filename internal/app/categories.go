package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/appopsctl/internal/ops"
	"github.com/blackwell-systems/appopsctl/internal/output"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the op categories and the operations each covers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(cmd.OutOrStdout(), output.RenderTemplateList(ops.Templates()))
		return nil
	},
}
