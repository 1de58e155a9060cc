package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/catalog"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/classifier"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/targeting"
)

type decideOptions struct {
	rulesPath   string
	catalogPath string
	threshold   float64
	at          string
	asJSON      bool
}

func newDecideCommand() *cobra.Command {
	opts := decideOptions{}

	cmd := &cobra.Command{
		Use:   "decide <question>",
		Short: "Classify a question and show the targeting decision",
		Long: `Runs the keyword classifier and decision gate against local rule and
catalog files. Nothing is recorded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecide(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.rulesPath, "rules", "rules.yml", "keyword rules file")
	cmd.Flags().StringVar(&opts.catalogPath, "catalog", "catalog.yml", "catalog file")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", targeting.DefaultThreshold, "targeting confidence threshold")
	cmd.Flags().StringVar(&opts.at, "at", "", "evaluate active windows at this RFC3339 time (default now)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the decision as JSON")
	return cmd
}

func runDecide(cmd *cobra.Command, question string, opts decideOptions) error {
	now := time.Now()
	if opts.at != "" {
		parsed, err := time.Parse(time.RFC3339, opts.at)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
		now = parsed
	}

	rules, err := classifier.LoadRules(opts.rulesPath)
	if err != nil {
		return err
	}
	cat, err := catalog.LoadFile(opts.catalogPath)
	if err != nil {
		return err
	}
	gate, err := targeting.NewGate(cat, opts.threshold)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	classification, err := classifier.NewKeyword(rules, logger.NewNop()).Classify(ctx, question, nil)
	if err != nil {
		return err
	}

	decision, err := gate.Decide(ctx, classification, now)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Classification domain.Classification `json:"classification"`
			Decision       domain.Decision       `json:"decision"`
		}{classification, decision})
	}

	renderClassification(out, classification)
	renderDecision(out, decision)
	return nil
}

func renderClassification(out io.Writer, c domain.Classification) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Classification")
	t.AppendHeader(table.Row{"Category", "Confidence"})
	for _, cs := range c.Categories {
		t.AppendRow(table.Row{cs.CategoryID, fmt.Sprintf("%.4f", cs.Confidence)})
	}
	if c.IsEmpty() {
		t.AppendRow(table.Row{"(none)", "-"})
	}
	t.AppendFooter(table.Row{"Keywords", strings.Join(c.Keywords, ", ")})
	t.Render()
}

func renderDecision(out io.Writer, d domain.Decision) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Decision")
	t.AppendRow(table.Row{"Mode", d.Mode})
	t.AppendRow(table.Row{"Confidence", fmt.Sprintf("%.4f", d.Confidence)})
	t.AppendRow(table.Row{"Category", d.Category})
	t.AppendRow(table.Row{"Matched", strings.Join(d.MatchedCategories, ", ")})
	if d.Entry != nil {
		t.AppendRow(table.Row{"Ad", d.Entry.ID})
		t.AppendRow(table.Row{"Title", d.Entry.Title})
		t.AppendRow(table.Row{"Destination", d.Entry.DestinationURL})
	}
	for _, reason := range d.Reasons {
		t.AppendRow(table.Row{"Reason", reason})
	}
	t.Render()
}
