// Command lastbil searches for the transshipment facility that minimises the
// truck distance needed to serve a demand file, and prints the plan.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/htangden/lastbil-optimering/internal/config"
	"github.com/htangden/lastbil-optimering/internal/dataset"
	"github.com/htangden/lastbil-optimering/internal/flowmodel"
	"github.com/htangden/lastbil-optimering/internal/locate"
	"github.com/htangden/lastbil-optimering/internal/report"
	"github.com/htangden/lastbil-optimering/internal/search"
	"github.com/htangden/lastbil-optimering/internal/solver"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG"), "path to YAML config file")
	out := flag.String("out", "", "write the report here instead of stdout")
	lpPath := flag.String("lp", "", "write the LP model of the best plan here")
	geoPath := flag.String("geojson", "", "write the plan as GeoJSON here")
	asJSON := flag.Bool("json", false, "print the plan as JSON")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: lastbil [flags] <datafile>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	cfg.ConfigureLogger()

	in, err := dataset.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	sv, err := solver.ByName(cfg.Planner.Solver)
	if err != nil {
		log.Fatal(err)
	}
	pc := cfg.Planner
	d := search.New(
		search.WithSolver(pc.Solver, sv),
		search.WithLocator(locate.New(
			locate.WithMaxIterations(pc.Locator.MaxIterations),
			locate.WithTolerance(pc.Locator.Tolerance),
			locate.WithSimplexSize(pc.Locator.SimplexSize),
		)),
		search.WithConversionFactor(pc.ConversionFactor),
		search.WithWorkers(pc.Workers),
		search.WithMaxNodes(pc.MaxNodes),
		search.WithSinkRelay(pc.SinkRelay),
		search.WithVerify(pc.VerifySolutions),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := d.Search(ctx, in.Sources, in.Sinks)
	if errors.Is(err, search.ErrNoFeasiblePlan) {
		st := res.Stats
		fmt.Fprintf(os.Stderr, "NO FEASIBLE PLAN:\n%d candidates, %d infeasible, %d failed\n", st.Candidates, st.Infeasible, st.Failed)
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}

	plan := report.FromResult(res)
	write := report.WriteText
	if *asJSON {
		write = report.WriteJSON
	}
	if err := writeTo(*out, func(w io.Writer) error { return write(w, plan) }); err != nil {
		log.Fatal(err)
	}
	if *lpPath != "" {
		if err := writeTo(*lpPath, func(w io.Writer) error { return flowmodel.WriteLP(w, res.Best.Model) }); err != nil {
			log.Fatal(err)
		}
	}
	if *geoPath != "" {
		err := writeTo(*geoPath, func(w io.Writer) error {
			b, err := report.GeoJSON(plan).MarshalJSON()
			if err != nil {
				return err
			}
			_, err = w.Write(b)
			return err
		})
		if err != nil {
			log.Fatal(err)
		}
	}
}

// writeTo runs fn against path, or stdout when path is empty.
func writeTo(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
