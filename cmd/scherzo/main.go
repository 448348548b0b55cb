package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/jilei-hao/scherzo/internal/models"
	"github.com/jilei-hao/scherzo/internal/rawvolume"
	"github.com/jilei-hao/scherzo/pkg/blob"
	"github.com/jilei-hao/scherzo/pkg/cache"
	"github.com/jilei-hao/scherzo/pkg/config"
	"github.com/jilei-hao/scherzo/pkg/export"
	"github.com/jilei-hao/scherzo/pkg/isosurface"
	"github.com/jilei-hao/scherzo/pkg/logging"
	"github.com/jilei-hao/scherzo/pkg/mesh"
	"github.com/jilei-hao/scherzo/pkg/metrics"
	"github.com/jilei-hao/scherzo/pkg/reconstruction"
	"github.com/jilei-hao/scherzo/pkg/visualization"
	"github.com/jilei-hao/scherzo/pkg/volume"
)

func main() {
	// Parse command line arguments
	input := flag.String("input", "", "YAML header of the label volume")
	configPath := flag.String("config", "scherzo.yaml", "Configuration file (.yaml or .toml)")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	name := flag.String("name", "", "Base name of exported files (default: input file name)")
	outputRoot := flag.String("output", "", "Override the export root directory of the fs driver")
	numWorkers := flag.Int("workers", 0, "Label surfaces extracted in parallel (default: from config)")
	timePoint := flag.Int("timepoint", -1, "Export only this time point (default: all)")
	ras := flag.Bool("ras", false, "Map surfaces into RAS world coordinates")
	extractSlices := flag.Bool("extract-slices", false, "Save colourised label slices of the first time point along all axes")
	slicesDir := flag.String("slices-dir", "label_slices", "Directory to save extracted slices")
	metricsFile := flag.String("metrics", "", "Write Prometheus metrics to this textfile")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *input == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *numWorkers > 0 {
		cfg.Processing.NumWorkers = *numWorkers
	}
	if *outputRoot != "" {
		cfg.Export.Root = *outputRoot
	}
	if *ras {
		cfg.Generation.ApplyRASTransform = true
	}
	if *name == "" {
		*name = strings.TrimSuffix(filepath.Base(*input), filepath.Ext(*input))
	}

	cfg.Logging.SetLogger()
	defer logging.Shutdown()
	if cfg.Logging.Verbose || cfg.Generation.Debug {
		logging.SetMode(logging.DebugMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("================================")
	fmt.Println("SCHERZO LABEL SURFACE GENERATION")
	fmt.Println("================================")

	if err := run(ctx, cfg, *input, *name, *timePoint, *extractSlices, *slicesDir, *metricsFile); err != nil {
		logging.Errorf("%v", err)
		logging.Shutdown()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, input, name string, timePoint int, extractSlices bool, slicesDir, metricsFile string) error {
	vol, err := rawvolume.Load(input)
	if err != nil {
		return errors.Wrapf(err, "loading %s", input)
	}
	fmt.Printf("Loaded %d-D volume %v (%s)\n", vol.Dimension(), vol.Size, humanize.Bytes(uint64(4*len(vol.Data))))

	labels := volume.ExtractLabels(vol)
	table, err := visualization.NewColorTable(cfg.Colors.Preset, labels, cfg.Colors.Overrides)
	if err != nil {
		return err
	}

	// slices are taken before the reconstructor may release the voxels
	if extractSlices {
		if err := saveSlices(vol, table, slicesDir); err != nil {
			logging.Warningf("Failed to save slices: %v", err)
		}
	}

	e, err := isosurface.SessionEngine(ctx)
	if err != nil {
		return err
	}
	rec := metrics.New()
	opts := []reconstruction.Option{reconstruction.WithMetrics(rec)}
	if cfg.Processing.CacheSizeMB > 0 {
		opts = append(opts, reconstruction.WithCache(cache.New(cfg.Processing.CacheSizeMB<<20)))
	}
	reconstructor := reconstruction.NewReconstructor(&reconstruction.Params{
		Options:       cfg.Generation,
		NumWorkers:    cfg.Processing.NumWorkers,
		ReleaseSource: cfg.Processing.ReleaseSource,
	}, e, opts...)

	fmt.Printf("Generating surfaces with %d worker(s)...\n", cfg.Processing.NumWorkers)
	set, err := reconstructor.GenerateModels(ctx, vol)
	var genErr *reconstruction.GenerationError
	switch {
	case errors.As(err, &genErr):
		for _, f := range genErr.Failures {
			logging.Warningf("Missing surface: %v", f)
		}
	case err != nil:
		return errors.Wrap(err, "generation failed")
	}

	report := reconstructor.GetReport()
	fmt.Printf("\nGeneration completed: %s\n\n", report)
	printSummary(set, table)

	if metricsFile != "" {
		if err := rec.WriteTextfile(metricsFile); err != nil {
			logging.Warningf("%v", err)
		}
	}

	store, err := blob.Open(ctx, blob.Config{
		Driver:    blob.Driver(cfg.Export.Driver),
		Root:      cfg.Export.Root,
		Bucket:    cfg.Export.Bucket,
		Region:    cfg.Export.Region,
		Endpoint:  cfg.Export.Endpoint,
		PathStyle: cfg.Export.PathStyle,
	})
	if err != nil {
		return err
	}
	exporter, err := export.NewExporter(store, cfg.Export.Prefix, export.Format(cfg.Export.Format))
	if err != nil {
		return err
	}
	exporter.Overwrite = true

	var results []export.Result
	if timePoint >= 0 {
		res, err := exporter.ExportTimePoint(ctx, set, timePoint, name)
		if err != nil {
			return err
		}
		results = append(results, res)
	} else if results, err = exporter.ExportAll(ctx, set, name); err != nil {
		return err
	}

	fmt.Println("\nExported files:")
	for _, res := range results {
		loc := res.URL
		if loc == "" {
			loc = res.Info.Key
		}
		fmt.Printf("- time point %d: %s (%s)\n", res.TimePoint, loc, humanize.Bytes(uint64(res.Info.Size)))
	}
	if genErr != nil {
		return genErr
	}
	return nil
}

func saveSlices(vol *models.Volume, table *visualization.ColorTable, dir string) error {
	first, err := volume.TimePoint(vol, 0)
	if err != nil {
		return err
	}
	renderer, err := visualization.NewSliceRenderer(first, table)
	if err != nil {
		return err
	}
	for _, axis := range []string{"x", "y", "z"} {
		axisDir := filepath.Join(dir, axis)
		fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)
		if err := renderer.SaveSliceSequence(axis, axisDir); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(set models.ModelSet, table *visualization.ColorTable) {
	fmt.Printf("%-6s %-6s %-9s %10s %10s %12s %12s\n", "tp", "label", "colour", "points", "triangles", "area", "volume")
	for t, tp := range set {
		for _, lm := range tp {
			s := mesh.ComputeStats(lm.Mesh)
			c := table.Lookup(lm.Label).NRGBA()
			fmt.Printf("%-6d %-6d #%02x%02x%02x %10d %10d %12.1f %12.1f\n",
				t, lm.Label, c.R, c.G, c.B, s.Points, s.Triangles, s.Area, s.Volume)
		}
	}
}
