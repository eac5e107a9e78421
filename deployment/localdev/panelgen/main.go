// Command panelgen writes a synthetic institution-year panel for local runs of
// spendtrends, including a share of institutions whose reported FTE jumps in
// the anomaly year.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var states = []string{"AL", "CA", "IL", "NY", "OH", "TX", "WA"}

func main() {
	var (
		out         = flag.String("out", "panel_2018_2023.csv", "Output CSV path")
		n           = flag.Int("institutions", 200, "Number of institutions")
		firstYear   = flag.Int("first-year", 2018, "First panel year")
		lastYear    = flag.Int("last-year", 2023, "Last panel year")
		anomalyYear = flag.Int("anomaly-year", 2020, "Year in which FTE jumps are injected")
		jumpRate    = flag.Float64("jump-rate", 0.05, "Fraction of institutions with an FTE jump")
		seed        = flag.Uint64("seed", 1, "Random seed")
	)
	flag.Parse()

	if *lastYear < *firstYear {
		log.Fatalf("last-year %d is before first-year %d", *lastYear, *firstYear)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	cols := map[string][]string{}
	order := []string{"UNITID", "INSTNM", "STABBR", "year", "type", "fte", "admin", "instruction", "research", "state", "total"}
	add := func(name, v string) { cols[name] = append(cols[name], v) }

	for i := 0; i < *n; i++ {
		id := strconv.Itoa(100000 + i*7)
		public := rng.Float64() < 0.6
		typ := "Private"
		if public {
			typ = "Public"
		}
		fte := 2000 + rng.Float64()*30000
		perFTE := 15000 + rng.Float64()*25000
		adminShare := 0.08 + rng.Float64()*0.12
		instrShare := 0.25 + rng.Float64()*0.2
		researchShare := rng.Float64() * 0.2
		stateShare := 0.0
		if public {
			stateShare = 0.15 + rng.Float64()*0.2
		}
		jump := rng.Float64() < *jumpRate

		for year := *firstYear; year <= *lastYear; year++ {
			if year > *firstYear {
				fte *= 1 + rng.NormFloat64()*0.03
				perFTE *= 1.03 + rng.NormFloat64()*0.01
			}
			reported := fte
			if jump && year >= *anomalyYear {
				reported = fte * (3 + rng.Float64()*2)
			}
			total := fte * perFTE

			add("UNITID", id)
			add("INSTNM", fmt.Sprintf("Institution %03d", i))
			add("STABBR", states[rng.IntN(len(states))])
			add("year", strconv.Itoa(year))
			add("type", typ)
			add("fte", strconv.FormatFloat(reported, 'f', 0, 64))
			add("admin", money(total*adminShare))
			add("instruction", money(total*instrShare))
			add("research", money(total*researchShare))
			add("state", money(total*stateShare))
			add("total", money(total))
		}
	}

	cs := make([]series.Series, 0, len(order))
	for _, name := range order {
		cs = append(cs, series.New(cols[name], series.String, name))
	}
	df := dataframe.New(cs...)
	if df.Err != nil {
		log.Fatalf("build panel: %v", df.Err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create %s: %v", *out, err)
	}
	if err := df.WriteCSV(f); err != nil {
		_ = f.Close()
		log.Fatalf("write %s: %v", *out, err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("close %s: %v", *out, err)
	}
	log.Printf("wrote %d rows for %d institutions to %s", df.Nrow(), *n, *out)
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}
