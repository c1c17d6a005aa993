package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kapu/taro-go/internal/app"
	"github.com/kapu/taro-go/internal/util"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify configuration, templates, store and that the model is loaded",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer logger.Sync()

		container, err := app.Build(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer container.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "provider:  %s (%s)\n", container.Model.ProviderName(), cfg.LLM.ServerURL)
		fmt.Fprintf(out, "model:     %s\n", container.Model.Model())
		fmt.Fprintf(out, "api key:   %s\n", util.MaskSecret(cfg.LLM.APIKey))
		fmt.Fprintf(out, "actions:   %v\n", container.Templates.Actions())
		fmt.Fprintf(out, "modes:     %d\n", len(container.Catalog.Names()))

		if err := container.Model.Setup(cmd.Context()); err != nil {
			fmt.Fprintf(out, "model ok:  no (%v)\n", err)
			return err
		}
		fmt.Fprintln(out, "model ok:  yes")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
