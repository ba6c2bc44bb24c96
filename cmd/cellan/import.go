package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cellcomm/cellan/internal/ingest"
)

func newImportCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import experiment outputs into the document store",
	}

	cmd.AddCommand(newImportEncodingCmd(opts))
	cmd.AddCommand(newImportCellsCmd(opts))
	cmd.AddCommand(newImportIterationsCmd(opts))
	return cmd
}

func newImportEncodingCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "encoding <descriptor.yaml>",
		Short: "Write an encoding from a YAML descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			enc, err := ingest.LoadEncoding(args[0])
			if err != nil {
				return err
			}
			docs, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer docs.Close()

			if err := docs.PutEncoding(cmd.Context(), enc); err != nil {
				return fmt.Errorf("write encoding %s: %w", enc.ID, err)
			}
			logger.Info("imported encoding", zap.String("encoding", enc.ID), zap.String("source", enc.SourceID()))
			return nil
		},
	}
}

func newImportCellsCmd(opts *globalOptions) *cobra.Command {
	var sourceID string

	cmd := &cobra.Command{
		Use:   "cells <prefix_matrix.mtx>",
		Short: "Import cells and the gene index from a Matrix Market triple",
		Long: `Import cells and the gene index from a 10x Matrix Market triple.

The barcodes and genes files must sit next to the matrix and share its
prefix: <prefix>matrix.mtx, <prefix>barcodes.tsv, <prefix>genes.tsv.
The source id defaults to the barcodes file name, which is what encodings
reference in sources.barcodes_file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if sourceID == "" {
				barcodes, _, err := ingest.SiblingFiles(args[0])
				if err != nil {
					return err
				}
				sourceID = filepath.Base(barcodes)
			}

			data, err := ingest.LoadCells(args[0], sourceID)
			if err != nil {
				return err
			}
			logger.Info("read matrix",
				zap.String("source", sourceID),
				zap.Int("barcodes", len(data.Barcodes)),
				zap.Int("cells", len(data.Cells)),
				zap.Int("genes", len(data.Genes)))

			docs, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer docs.Close()

			if err := ingest.ImportCells(cmd.Context(), docs, data); err != nil {
				return err
			}
			logger.Info("imported cells", zap.String("source", sourceID))
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "", "Source id of the cells (default: barcodes file name)")
	return cmd
}

func newImportIterationsCmd(opts *globalOptions) *cobra.Command {
	var (
		barcodesPath string
		scale        float64
		workers      int
	)

	cmd := &cobra.Command{
		Use:   "iterations <encoding-id> <dir>",
		Short: "Import the <iteration>.tsv coordinate files of an encoding",
		Long: `Import the <iteration>.tsv coordinate files of an encoding.

Each file holds one "x y z" row per barcode. Coordinates are multiplied by
--scale, cells are numbered by barcode line and points sharing a position
are grouped. When the encoding exists its available iterations are
extended with the imported ones.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			encodingID, dir := args[0], args[1]
			docs, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer docs.Close()

			enc, err := docs.GetEncoding(cmd.Context(), encodingID)
			if err != nil {
				return err
			}
			if barcodesPath == "" {
				if enc == nil {
					return fmt.Errorf("encoding %s not found; pass --barcodes", encodingID)
				}
				barcodesPath = enc.Sources.BarcodesFile
			}
			barcodes, err := ingest.LoadBarcodes(barcodesPath)
			if err != nil {
				return err
			}

			indexes, err := ingest.ImportIterations(cmd.Context(), docs, dir, ingest.IterationOptions{
				EncodingID: encodingID,
				Barcodes:   barcodes,
				Scale:      scale,
				Workers:    workers,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			if enc != nil {
				enc.AvailableIterations = mergeIterations(enc.AvailableIterations, indexes)
				if err := docs.PutEncoding(cmd.Context(), enc); err != nil {
					return fmt.Errorf("update encoding %s: %w", encodingID, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&barcodesPath, "barcodes", "", "Barcodes file (default: the encoding's sources.barcodes_file)")
	cmd.Flags().Float64Var(&scale, "scale", ingest.DefaultScale, "Coordinate scale factor")
	cmd.Flags().IntVar(&workers, "workers", 0, "Files parsed concurrently (default: GOMAXPROCS)")
	return cmd
}

// mergeIterations returns the sorted union of two iteration lists.
func mergeIterations(a, b []int) []int {
	seen := make(map[int]struct{}, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, list := range [][]int{a, b} {
		for _, it := range list {
			if _, ok := seen[it]; ok {
				continue
			}
			seen[it] = struct{}{}
			out = append(out, it)
		}
	}
	sort.Ints(out)
	return out
}
