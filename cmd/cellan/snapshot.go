package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cellcomm/cellan/internal/client"
	"github.com/cellcomm/cellan/internal/render"
	"github.com/cellcomm/cellan/internal/viewstate"
)

func newSnapshotCmd(opts *globalOptions) *cobra.Command {
	var (
		out       string
		size      int
		cellID    int64
		sibling   int64
		gene      string
		threshold string
	)

	cmd := &cobra.Command{
		Use:   "snapshot <page-url>",
		Short: "Render a visualization page headlessly",
		Long: `Load a visualization page such as http://localhost:13013/cellan/LR9990/1412
from a running server, optionally select a cell, a duplicate sibling, a
threshold and a focused gene, then write the plot to a PNG file and the
detail panel to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			base, _, _, err := viewstate.ParseLocation(args[0])
			if err != nil {
				return err
			}

			canvas := render.NewCanvas(render.NewScatterRenderer(render.Config{
				Size:              size,
				DefaultColorscale: cfg.Render.Colorscale,
			}))
			panel := &textPanel{w: cmd.OutOrStdout()}
			ctrl := viewstate.NewController(viewstate.Config{
				Fetcher:    client.New(base, nil, logger),
				Plot:       canvas,
				Panel:      panel,
				Location:   viewstate.NewMemoryHistory(args[0]),
				Logger:     logger,
				Colorscale: cfg.Render.Colorscale,
				MarkerSize: cfg.Render.MarkerSize,
				Threshold:  cfg.Render.Threshold,
			})

			ctx := cmd.Context()
			if err := ctrl.Sync(ctx); err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			if threshold != "" && !ctrl.ChangeThresholdText(threshold) {
				return fmt.Errorf("threshold %q is not an integer", threshold)
			}
			if cmd.Flags().Changed("cell") {
				if err := ctrl.ClickPoint(ctx, cellID); err != nil {
					return fmt.Errorf("cell %d: %w", cellID, err)
				}
			}
			if cmd.Flags().Changed("sibling") {
				if err := ctrl.SelectSibling(ctx, sibling); err != nil {
					return fmt.Errorf("sibling %d: %w", sibling, err)
				}
			}
			if gene != "" {
				if err := ctrl.FocusGene(ctx, gene); err != nil {
					return fmt.Errorf("gene %s: %w", gene, err)
				}
			}

			frame := canvas.PNG()
			if len(frame) == 0 {
				return errors.New("nothing was rendered")
			}
			if err := os.WriteFile(out, frame, 0644); err != nil {
				return err
			}
			panel.flush()
			logger.Info("wrote snapshot", zap.String("file", out), zap.Int("bytes", len(frame)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "snapshot.png", "Output PNG file")
	cmd.Flags().IntVar(&size, "size", 800, "Image edge length in pixels")
	cmd.Flags().Int64Var(&cellID, "cell", 0, "Cell to click")
	cmd.Flags().Int64Var(&sibling, "sibling", 0, "Duplicate sibling to select after --cell")
	cmd.Flags().StringVar(&gene, "gene", "", "Ensembl id of the gene to focus")
	cmd.Flags().StringVar(&threshold, "threshold", "", "Minimum gene value shown in the panel")
	return cmd
}

// textPanel keeps the last panel view and prints it on flush.
type textPanel struct {
	w io.Writer

	mu   sync.Mutex
	view viewstate.PanelView
}

func (p *textPanel) SetLoading(bool) {}

func (p *textPanel) Update(view viewstate.PanelView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.view = view
}

func (p *textPanel) flush() {
	p.mu.Lock()
	view := p.view
	p.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "encoding %s, iteration %d, threshold %d\n", view.EncodingID, view.Iteration, view.Threshold)
	if view.Cell == nil {
		b.WriteString("No cell selected\n")
		fmt.Fprint(p.w, b.String())
		return
	}
	fmt.Fprintf(&b, "cell %s (%d)\n", view.Cell.Name, view.Cell.CellID)
	for _, s := range view.Cell.Siblings {
		mark := " "
		if s.Selected {
			mark = "*"
		}
		fmt.Fprintf(&b, "  %s %s (%d)\n", mark, s.Name, s.CellID)
	}
	for _, g := range view.Cell.Genes {
		mark := " "
		if g.EnsemblID == view.FocusedGene {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %-20s %-12s %g\n", mark, g.EnsemblID, g.MGISymbol, g.Value)
	}
	fmt.Fprint(p.w, b.String())
}
