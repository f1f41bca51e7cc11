// Command gedifetch discovers GEDI granules on the LP DAAC data pool,
// filters them by footprint, and extracts shots matching spatial and
// quality constraints into a CSV table.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/example/go-gedi/gedi"
	"github.com/example/go-gedi/gedi/constraint"
	"github.com/example/go-gedi/gedi/download"
	"github.com/example/go-gedi/gedi/model"
	"github.com/example/go-gedi/gedi/sphere"
)

const dateLayout = "2006-01-02"

func main() {
	root := &cli.Command{
		Name:    "gedifetch",
		Usage:   "Discover, filter, and extract GEDI lidar shots from the LP DAAC data pool",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Usage:   "Earthdata login username",
				Sources: cli.EnvVars("EARTHDATA_USER"),
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "Earthdata login password",
				Sources: cli.EnvVars("EARTHDATA_PWD"),
			},
			&cli.StringFlag{
				Name:  "base-url",
				Usage: "Override the data pool root URL",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable per-granule debug logging",
			},
		},
		Commands: []*cli.Command{
			newGranulesCommand(),
			newFetchCommand(),
			newVerifyCommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func dateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "level",
			Usage:   "Product level (L1B, L2A, or L2B)",
			Value:   "L2A",
			Aliases: []string{"l"},
		},
		&cli.StringFlag{
			Name:     "start",
			Usage:    "First acquisition date (YYYY-MM-DD, inclusive)",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "end",
			Usage:    "Last acquisition date (YYYY-MM-DD, inclusive)",
			Required: true,
		},
	}
}

func newGranulesCommand() *cli.Command {
	return &cli.Command{
		Name:  "granules",
		Usage: "List granules acquired in a date range",
		Flags: dateFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, err := buildClient(cmd)
			if err != nil {
				return err
			}
			level, start, end, err := parseRange(cmd)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GRANULE\tURL")
			count := 0
			it := client.Granules(level, start, end)
			for it.Next(ctx) {
				g := it.Granule()
				fmt.Fprintf(tw, "%s\t%s\n", g.ID, g.DataURL)
				count++
			}
			if err := it.Err(); err != nil {
				return err
			}
			tw.Flush()
			fmt.Fprintf(os.Stderr, "%d granule(s)\n", count)
			return nil
		},
	}
}

func newFetchCommand() *cli.Command {
	flags := append(dateFlags(),
		&cli.StringSliceFlag{
			Name:  "region",
			Usage: "YAML file of region polygons; granules outside all regions are skipped (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "box",
			Usage: "Bounding box minLat,maxLat,minLon,maxLon; keeps shots inside and skips granules outside (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "near",
			Usage: "Reference point lat,lon for --radius filtering (repeatable)",
		},
		&cli.FloatFlag{
			Name:  "radius",
			Usage: "Keep only shots within this many kilometres of a --near point",
		},
		&cli.StringSliceFlag{
			Name:  "beam",
			Usage: "Keep only shots from this beam, e.g. BEAM0101 (repeatable)",
		},
		&cli.BoolFlag{
			Name:  "full-power",
			Usage: "Keep only shots from the four full-power beams",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Number of granules processed at once",
			Value: 4,
		},
		&cli.StringFlag{
			Name:    "output",
			Usage:   "Destination CSV file, or - for stdout",
			Value:   "-",
			Aliases: []string{"o"},
		},
		&cli.StringFlag{
			Name:  "s3-credentials-url",
			Usage: "Earthdata endpoint for temporary S3 credentials (enables s3:// granule URLs)",
		},
		&cli.StringFlag{
			Name:  "metrics-listen",
			Usage: "Serve Prometheus pipeline metrics on this address while running",
		},
	)
	return &cli.Command{
		Name:   "fetch",
		Usage:  "Fetch granules, filter shots, and write the surviving shots as CSV",
		Flags:  flags,
		Action: executeFetch,
	}
}

func executeFetch(ctx context.Context, cmd *cli.Command) error {
	client, err := buildClient(cmd)
	if err != nil {
		return err
	}
	level, start, end, err := parseRange(cmd)
	if err != nil {
		return err
	}
	gc, shots, err := buildConstraints(cmd)
	if err != nil {
		return err
	}
	logger, err := buildLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg := download.Config{
		Concurrency: int(cmd.Int("concurrency")),
		Logger:      logger,
	}
	if addr := strings.TrimSpace(cmd.String("metrics-listen")); addr != "" {
		reg := prometheus.NewRegistry()
		cfg.Metrics = download.NewMetrics(reg)
		go func() {
			handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
			if err := http.ListenAndServe(addr, handler); err != nil {
				logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	manager, err := download.NewManager(client, cfg)
	if err != nil {
		return err
	}

	result, err := manager.Run(ctx, client.Granules(level, start, end), gc, shots)
	if err != nil {
		return err
	}

	if err := writeTable(cmd.String("output"), result.Table); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%d candidate(s), %d skipped, %d fetched, %d failed, %d shot(s) retained\n",
		result.Stats.Candidates, result.Stats.Skipped, result.Stats.Fetched,
		result.Stats.Failed, result.Stats.ShotsRetained)
	for id, failure := range result.Failures {
		fmt.Fprintf(os.Stderr, "failed %s at %s: %v\n", id, failure.Stage, failure.Err)
	}
	return nil
}

func newVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Check that the Earthdata credentials are accepted",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, err := buildClient(cmd)
			if err != nil {
				return err
			}
			if err := client.CheckCredentials(ctx); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "Credentials accepted.")
			return nil
		},
	}
}

func buildClient(cmd *cli.Command) (*gedi.Client, error) {
	root := cmd.Root()
	creds := gedi.Credentials{
		Username: strings.TrimSpace(root.String("username")),
		Password: root.String("password"),
	}
	var opts []gedi.Option
	if baseURL := strings.TrimSpace(root.String("base-url")); baseURL != "" {
		opts = append(opts, gedi.WithBaseURL(baseURL))
	}
	if credsURL := strings.TrimSpace(cmd.String("s3-credentials-url")); credsURL != "" {
		opts = append(opts, gedi.WithS3CredentialsURL(credsURL))
	}
	return gedi.NewClient(creds, opts...)
}

func buildLogger(cmd *cli.Command) (*zap.Logger, error) {
	if cmd.Root().Bool("verbose") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func parseRange(cmd *cli.Command) (gedi.ProductLevel, time.Time, time.Time, error) {
	level, err := parseLevel(cmd.String("level"))
	if err != nil {
		return "", time.Time{}, time.Time{}, err
	}
	start, err := time.Parse(dateLayout, strings.TrimSpace(cmd.String("start")))
	if err != nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("parse start: %w", err)
	}
	end, err := time.Parse(dateLayout, strings.TrimSpace(cmd.String("end")))
	if err != nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("parse end: %w", err)
	}
	return level, start, end, nil
}

func parseLevel(value string) (gedi.ProductLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "L1B", "GEDI01_B":
		return gedi.LevelL1B, nil
	case "L2A", "GEDI02_A":
		return gedi.LevelL2A, nil
	case "L2B", "GEDI02_B":
		return gedi.LevelL2B, nil
	default:
		return "", fmt.Errorf("unknown product level %q (expected L1B, L2A, or L2B)", value)
	}
}

// regionFile is the YAML schema accepted by --region. Vertices are
// [lat, lon] pairs walking the polygon counterclockwise.
type regionFile struct {
	Regions []struct {
		Name     string       `yaml:"name"`
		Vertices [][2]float64 `yaml:"vertices"`
	} `yaml:"regions"`
}

func loadRegions(path string) ([]constraint.GranuleConstraint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region file: %w", err)
	}
	var file regionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse region file %s: %w", path, err)
	}
	var constraints []constraint.GranuleConstraint
	for _, region := range file.Regions {
		vertices := make([]sphere.Point, 0, len(region.Vertices))
		for _, v := range region.Vertices {
			p, err := sphere.NewPoint(v[0], v[1])
			if err != nil {
				return nil, fmt.Errorf("region %q: %w", region.Name, err)
			}
			vertices = append(vertices, p)
		}
		boundary, err := sphere.NewBoundary(vertices)
		if err != nil {
			return nil, fmt.Errorf("region %q: %w", region.Name, err)
		}
		gc, err := constraint.NewRegionGC(boundary)
		if err != nil {
			return nil, fmt.Errorf("region %q: %w", region.Name, err)
		}
		constraints = append(constraints, gc)
	}
	if len(constraints) == 0 {
		return nil, fmt.Errorf("region file %s defines no regions", path)
	}
	return constraints, nil
}

// buildConstraints assembles the granule screen and the shot filters from
// the spatial flags. Granules matching any region or box are fetched; the
// quality screen always applies to shots.
func buildConstraints(cmd *cli.Command) (constraint.GranuleConstraint, []constraint.ShotConstraint, error) {
	var granule []constraint.GranuleConstraint
	shots := []constraint.ShotConstraint{constraint.Quality()}

	for _, path := range cmd.StringSlice("region") {
		regions, err := loadRegions(path)
		if err != nil {
			return nil, nil, err
		}
		granule = append(granule, regions...)
	}

	for _, spec := range cmd.StringSlice("box") {
		minLat, maxLat, minLon, maxLon, err := parseBox(spec)
		if err != nil {
			return nil, nil, err
		}
		box, err := constraint.NewLatLonBox(minLat, maxLat, minLon, maxLon)
		if err != nil {
			return nil, nil, err
		}
		shots = append(shots, box)
		gc, err := boxRegion(minLat, maxLat, minLon, maxLon)
		if err != nil {
			return nil, nil, err
		}
		granule = append(granule, gc)
	}

	near := cmd.StringSlice("near")
	radius := cmd.Float("radius")
	if (len(near) > 0) != (radius > 0) {
		return nil, nil, fmt.Errorf("--near and --radius must be used together")
	}
	if len(near) > 0 {
		points := make([]sphere.Point, 0, len(near))
		for _, spec := range near {
			p, err := parsePoint(spec)
			if err != nil {
				return nil, nil, err
			}
			points = append(points, p)
		}
		buffer, err := constraint.NewBuffer(radius, points)
		if err != nil {
			return nil, nil, err
		}
		shots = append(shots, buffer)
	}

	var beams []string
	for _, beam := range cmd.StringSlice("beam") {
		if trimmed := strings.TrimSpace(beam); trimmed != "" {
			beams = append(beams, trimmed)
		}
	}
	if cmd.Bool("full-power") {
		beams = append(beams, model.FullPowerBeams...)
	}
	if len(beams) > 0 {
		beamSet, err := constraint.NewBeamSet(beams...)
		if err != nil {
			return nil, nil, err
		}
		shots = append(shots, beamSet)
	}

	var gc constraint.GranuleConstraint
	if len(granule) > 0 {
		composite, err := constraint.NewCompositeGC(constraint.ModeAny, granule...)
		if err != nil {
			return nil, nil, err
		}
		gc = composite
	}
	return gc, shots, nil
}

// boxRegion converts a bounding box into a footprint screen. Boxes wider
// than a hemisphere are rejected; split them into two --box flags.
func boxRegion(minLat, maxLat, minLon, maxLon float64) (constraint.GranuleConstraint, error) {
	span := maxLon - minLon
	for span <= 0 {
		span += 360
	}
	if span >= 180 {
		return nil, fmt.Errorf("box longitude span %.1f too wide; split it into two boxes", span)
	}
	corners := [][2]float64{
		{minLat, minLon},
		{minLat, minLon + span},
		{maxLat, minLon + span},
		{maxLat, minLon},
	}
	vertices := make([]sphere.Point, 0, len(corners))
	for _, c := range corners {
		p, err := sphere.NewPoint(c[0], c[1])
		if err != nil {
			return nil, err
		}
		vertices = append(vertices, p)
	}
	boundary, err := sphere.NewBoundary(vertices)
	if err != nil {
		return nil, err
	}
	gc, err := constraint.NewRegionGC(boundary)
	if err != nil {
		return nil, err
	}
	return gc, nil
}

func parseBox(spec string) (minLat, maxLat, minLon, maxLon float64, err error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("box %q: expected minLat,maxLat,minLon,maxLon", spec)
	}
	vals := make([]float64, 4)
	for i, part := range parts {
		vals[i], err = strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0, 0, 0, 0, fmt.Errorf("box %q: %w", spec, err)
		}
	}
	return vals[0], vals[1], vals[2], vals[3], nil
}

func parsePoint(spec string) (sphere.Point, error) {
	latStr, lonStr, ok := strings.Cut(spec, ",")
	if !ok {
		return sphere.Point{}, fmt.Errorf("point %q: expected lat,lon", spec)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return sphere.Point{}, fmt.Errorf("point %q: %w", spec, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return sphere.Point{}, fmt.Errorf("point %q: %w", spec, err)
	}
	return sphere.NewPoint(lat, lon)
}

func writeTable(dest string, table model.Table) error {
	if dest == "" || dest == "-" {
		return table.WriteCSV(os.Stdout)
	}
	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := table.WriteCSV(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
