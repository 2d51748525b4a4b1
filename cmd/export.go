package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/farmmap/internal/export"
	"github.com/sells-group/farmmap/internal/model"
	"github.com/sells-group/farmmap/internal/store"
)

var (
	exportOutput   string
	exportNear     string
	exportRadiusKm float64
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write persisted records as a GeoJSON FeatureCollection",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		n, err := runExport(cmd.Context(), cfg.Output.Dir, exportOutput, exportNear, exportRadiusKm)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "exported %d records to %s\n", n, exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutput, "output", "data/stables.geojson", "GeoJSON output path")
	exportCmd.Flags().StringVar(&exportNear, "near", "", "only export stables near lat,lng")
	exportCmd.Flags().Float64Var(&exportRadiusKm, "radius-km", 50, "radius used with --near")
	rootCmd.AddCommand(exportCmd)
}

func runExport(ctx context.Context, outDir, output, near string, radiusKm float64) (int, error) {
	var center *model.Position
	if near != "" {
		pos, err := export.ParseCenter(near)
		if err != nil {
			return 0, err
		}
		center = &pos
	}

	fs, err := store.NewFileStore(outDir)
	if err != nil {
		return 0, err
	}

	recs, err := fs.List(ctx)
	if err != nil {
		return 0, err
	}

	if center != nil {
		recs = export.Within(recs, *center, radiusKm)
	}

	if err := export.WriteFile(output, recs); err != nil {
		return 0, err
	}
	zap.L().Info("geojson exported", zap.Int("records", len(recs)), zap.String("path", output))
	return len(recs), nil
}
