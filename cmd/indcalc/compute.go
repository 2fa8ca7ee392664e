package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"chartengine/internal/coordinator"
	"chartengine/internal/gateway"
	"chartengine/internal/model"
	"chartengine/internal/series"
)

func computeCmd() *cobra.Command {
	var (
		format    string
		emaPeriod int
		rsiPeriod int
	)

	cmd := &cobra.Command{
		Use:   "compute <file>",
		Short: "Compute the indicator catalogue for an .xlsx or .csv price file",
		Long: `Load a price file, drop malformed rows and print the chart payload
(labels, closes and every indicator aligned to its first label).

Example:
  indcalc compute prices.xlsx
  indcalc compute --ema 50 --format yaml prices.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unknown format %q (want json or yaml)", format)
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ps := model.DefaultParamSet()
			ps = model.ParamUpdate{EMAPeriod: emaPeriod, RSIPeriod: rsiPeriod}.Apply(ps)
			resp, rep, err := compute(filepath.Base(args[0]), f, ps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d rows, %d kept, %d dropped\n", rep.Rows, rep.Kept, rep.Dropped)
			return write(cmd.OutOrStdout(), format, resp)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or yaml")
	cmd.Flags().IntVar(&emaPeriod, "ema", 0, "EMA period (default 20)")
	cmd.Flags().IntVar(&rsiPeriod, "rsi", 0, "RSI period (default 14)")

	return cmd
}

func compute(name string, r io.Reader, ps model.ParamSet) (gateway.ChartResponse, series.Report, error) {
	rows, err := series.LoadFile(name, r)
	if err != nil {
		return gateway.ChartResponse{}, series.Report{}, err
	}
	s, rep, err := series.ValidateWithReport(rows)
	if err != nil {
		return gateway.ChartResponse{}, rep, err
	}
	results, err := coordinator.ComputeAligned(s, ps)
	if err != nil {
		return gateway.ChartResponse{}, rep, err
	}
	snap := &coordinator.Snapshot{
		Dataset:    name,
		Series:     s,
		Params:     ps,
		Results:    results,
		Labels:     s.Labels(),
		Closes:     s.Closes(),
		ComputedAt: time.Now().UTC(),
	}
	return gateway.NewChartResponse(snap), rep, nil
}

func write(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
