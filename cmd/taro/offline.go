package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/util"
)

var statsMode string

var statsCmd = &cobra.Command{
	Use:     "stats [card...]",
	Short:   "Print suit and court statistics for a draw",
	Example: `  taro stats --mode three_card "ace of wands" "nine of cups" "king of swords"`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := domain.DefaultCatalog().Resolve(statsMode)
		if err != nil {
			return err
		}
		spread, err := domain.NewCardSpread(mode, util.CleanAll(args))
		if err != nil {
			return err
		}
		insights, err := spread.Insights()
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(insights)
	},
}

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List reading modes and their positions",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, m := range domain.DefaultCatalog().All() {
			fmt.Fprintf(out, "%-22s %2d  %s\n", m.Name, m.RequiredCount, strings.Join(m.Positions, ", "))
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVarP(&statsMode, "mode", "m", "three_card", "Reading mode of the draw")
	rootCmd.AddCommand(statsCmd, modesCmd)
}
