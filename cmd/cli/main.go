package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"wind-hindcast/internal/analysis"
	"wind-hindcast/internal/config"
	"wind-hindcast/internal/data"
	"wind-hindcast/internal/geo"
	"wind-hindcast/internal/hindcast"
	"wind-hindcast/internal/model"
	"wind-hindcast/internal/powercurve"

	"github.com/joho/godotenv"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "match":
		cmdMatch(os.Args[2:])
	case "curve":
		cmdCurve(os.Args[2:])
	case "summary":
		cmdSummary(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli run --config examples/run.yaml [--start 2016-01-01 --end 2016-01-31 --turbine 'IEC class 2' --out results/hindcast.csv]")
	fmt.Println("  cli match --sites data/sites.csv --grid data/rap/rap_130_20160101_0000_000.nc")
	fmt.Println("  cli curve --curves data/power_curves.csv --turbine 'IEC class 2' [--capacity 100] 3.5 5.5 12")
	fmt.Println("  cli summary --table results/hindcast.csv [--sites data/sites.csv --top 10]")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - run issues one RAP request per hour and pauses after every rate_limit.every requests")
	fmt.Println("  - hours that cannot be retrieved are written as empty cells and listed in --missing-out")
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML run config")
	sitesPath := fs.String("sites", "", "Override: sites file (.csv or .json)")
	curvesPath := fs.String("curves", "", "Override: power curves CSV")
	turbine := fs.String("turbine", "", "Override: turbine class column")
	start := fs.String("start", "", "Override: start date YYYY-MM-DD")
	end := fs.String("end", "", "Override: end date YYYY-MM-DD (inclusive)")
	baseURL := fs.String("base-url", "", "Override: NCSS base URL")
	outPath := fs.String("out", "", "Output CSV path (default results/hindcast.csv)")
	missingPath := fs.String("missing-out", "", "Missing-hours list path (default <out>.missing.txt)")
	_ = fs.Parse(args)

	if *cfgPath == "" {
		fmt.Println("--config is required")
		os.Exit(2)
	}

	base, err := config.LoadUnchecked(*cfgPath)
	if err != nil {
		panic(err)
	}
	base.ApplyEnv()
	cfg := config.MergeRun(*base, config.Config{
		SitesFile:       *sitesPath,
		PowerCurvesFile: *curvesPath,
		TurbineClass:    *turbine,
		StartDate:       *start,
		EndDate:         *end,
		Output:          config.OutputConfig{TableFile: *outPath, MissingFile: *missingPath},
		Source:          config.SourceConfig{BaseURL: *baseURL},
	})
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	startDate, endDate, err := cfg.Dates()
	if err != nil {
		panic(err)
	}

	sites, err := data.LoadSites(cfg.SitesFile)
	if err != nil {
		panic(err)
	}
	curves, err := powercurve.LoadCSV(cfg.PowerCurvesFile)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := data.NewRAPClient(cfg.ToSourceOptions())
	engine := hindcast.New(client, curves, hindcast.WithRateLimit(cfg.ToRateLimit()))
	res, err := engine.Run(ctx, hindcast.Request{
		Sites:        sites,
		Start:        startDate,
		End:          endDate,
		TurbineClass: cfg.TurbineClass,
	})
	if err != nil {
		panic(err)
	}

	tablePath := cfg.Output.TableFile
	if tablePath == "" {
		tablePath = "results/hindcast.csv"
	}
	missingOut := cfg.Output.MissingFile
	if missingOut == "" {
		missingOut = strings.TrimSuffix(tablePath, filepath.Ext(tablePath)) + ".missing.txt"
	}

	// ensure output dirs exist
	for _, p := range []string{tablePath, missingOut} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			panic(err)
		}
	}
	if err := hindcast.WriteTableCSV(tablePath, res.Rows); err != nil {
		panic(err)
	}
	if err := hindcast.WriteMissing(missingOut, res.Missing); err != nil {
		panic(err)
	}

	fmt.Printf("Wrote %d rows (%d sites x %d hours) to %s\n", len(res.Rows), len(res.Sites), res.Hours, tablePath)
	fmt.Printf("Missing hours: %d (listed in %s), cooldowns: %d\n", len(res.Missing), missingOut, res.Cooldowns)
}

func cmdMatch(args []string) {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	sitesPath := fs.String("sites", "", "Sites file (.csv or .json)")
	gridPath := fs.String("grid", "", "Local RAP netCDF subset")
	heightIndex := fs.Int("height-index", data.DefaultHeightIndex, "Index into the height dimension")
	_ = fs.Parse(args)

	if *sitesPath == "" || *gridPath == "" {
		fmt.Println("--sites and --grid are required")
		os.Exit(2)
	}

	sites, err := data.LoadSites(*sitesPath)
	if err != nil {
		panic(err)
	}
	dec := &data.NetCDFDecoder{HeightIndex: *heightIndex}
	snap, err := dec.DecodeFile(*gridPath)
	if err != nil {
		panic(err)
	}
	m, err := geo.BuildNearestMap(sites, snap.Lon, snap.Lat)
	if err != nil {
		panic(err)
	}

	fmt.Printf("%-10s %10s %10s %10s %10s %10s %10s\n", "site_id", "lon", "lat", "grid_idx", "grid_lon", "grid_lat", "dist_deg")
	for _, s := range sites {
		idx, _ := m.Index(s.ID)
		fmt.Printf("%-10d %10.4f %10.4f %10d %10.4f %10.4f %10.4f\n",
			s.ID, s.Lon, s.Lat, idx, snap.Lon[idx], snap.Lat[idx], m.Distance(s.ID))
	}
}

func cmdCurve(args []string) {
	fs := flag.NewFlagSet("curve", flag.ExitOnError)
	curvesPath := fs.String("curves", "", "Power curves CSV")
	turbine := fs.String("turbine", "", "Turbine class column (empty lists classes)")
	capacity := fs.Float64("capacity", 0, "Optional: site capacity in MW")
	_ = fs.Parse(args)

	if *curvesPath == "" {
		fmt.Println("--curves is required")
		os.Exit(2)
	}
	curves, err := powercurve.LoadCSV(*curvesPath)
	if err != nil {
		panic(err)
	}
	if *turbine == "" {
		fmt.Println("turbine classes:")
		for _, c := range curves.Classes() {
			fmt.Printf("  %s\n", c)
		}
		return
	}

	for _, raw := range fs.Args() {
		speed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			panic(fmt.Errorf("invalid speed %q: %w", raw, err))
		}
		p, err := curves.SpeedToPower(speed, *turbine)
		if err != nil {
			panic(err)
		}
		if *capacity > 0 {
			fmt.Printf("%8.3f m/s  %.4f  %10.3f MW\n", speed, p, p*(*capacity))
		} else {
			fmt.Printf("%8.3f m/s  %.4f\n", speed, p)
		}
	}
}

func cmdSummary(args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	tablePath := fs.String("table", "results/hindcast.csv", "Hindcast table CSV")
	sitesPath := fs.String("sites", "", "Optional: sites file for capacity and names")
	top := fs.Int("top", 0, "Optional: show only the top N sites (0=all)")
	_ = fs.Parse(args)

	rows, err := hindcast.LoadTableCSV(*tablePath)
	if err != nil {
		panic(err)
	}
	var sites []model.Site
	if *sitesPath != "" {
		sites, err = data.LoadSites(*sitesPath)
		if err != nil {
			panic(err)
		}
	}

	ranked := analysis.RankByCapacityFactor(analysis.Summarize(rows, sites))
	if *top > 0 && *top < len(ranked) {
		ranked = ranked[:*top]
	}

	fmt.Printf("%-6s %-10s %-24s %8s %8s %12s %12s %8s\n", "rank", "site_id", "name", "hours", "missing", "mean_mw", "energy_mwh", "cf")
	for i, s := range ranked {
		fmt.Printf("%-6d %-10d %-24s %8d %8d %12.3f %12.1f %8.3f\n",
			i+1, s.SiteID, s.Name, s.Hours, s.MissingHours, s.MeanPowerMW, s.EnergyMWh, s.CapacityFactor)
	}
}
