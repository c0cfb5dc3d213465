package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/claim-intake/internal/extract"
)

func newExtractCommand() *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   "extract [file|-]",
		Short: "Extract claim fields from document text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strategies, err := strategiesFor(strategy)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), extract.Run(string(data), strategies...))
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "all", "invoice, lines or all")
	return cmd
}

func strategiesFor(name string) ([]extract.Strategy, error) {
	if name == "all" {
		return []extract.Strategy{extract.InvoiceStrategy, extract.LinesStrategy}, nil
	}
	s, ok := extract.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (want invoice, lines or all)", name)
	}
	return []extract.Strategy{s}, nil
}

func newClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [text...]",
		Short: "Suggest a claim type for a description",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := textArgs(cmd, args)
			if err != nil {
				return err
			}
			claimType, ok := extract.Classify(text)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "none")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), claimType)
			return nil
		},
	}
}

func newDamageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "damage [file|-]",
		Short: "Summarize a damage detection result",
		Long:  "Reads a damage detection result as JSON ({\"success\", \"damages\", \"confidence\"}) and prints the summary and recommendation shown to claimants.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			var res extract.DamageResult
			if err := json.Unmarshal(data, &res); err != nil {
				return fmt.Errorf("decode damage result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), extract.DamageSummary(res))
			fmt.Fprintln(cmd.OutOrStdout(), extract.DamageRecommendation(res))
			return nil
		},
	}
}
