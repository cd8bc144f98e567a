package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/isoline/internal/benchmark"
)

func main() {
	var (
		surfaces   = flag.String("surfaces", strings.Join(benchmark.SurfaceNames(), ","), "Comma-separated synthetic surfaces")
		sizes      = flag.String("sizes", "256,1024", "Comma-separated square raster sizes")
		interval   = flag.Float64("interval", 5, "Contour interval")
		iterations = flag.Int("iterations", 3, "Number of iterations per case")
		outputFile = flag.String("output", "", "Write CSV results to this file (optional)")
	)
	flag.Parse()

	sizeList, err := parseSizes(*sizes)
	if err != nil {
		log.Fatalf("Invalid -sizes: %v", err)
	}

	fmt.Println("isoline Contouring Benchmark")
	fmt.Println("============================")
	fmt.Printf("Running benchmarks with %d iterations per case...\n\n", *iterations)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := benchmark.NewRunner(*interval, *iterations)
	results, err := runner.Run(ctx, benchmark.Cases(strings.Split(*surfaces, ","), sizeList))
	benchmark.Print(os.Stdout, results)
	if err != nil {
		log.Fatalf("Benchmark interrupted: %v", err)
	}

	if *outputFile != "" {
		if err := saveResultsToFile(*outputFile, results); err != nil {
			log.Printf("Failed to save results to file: %v", err)
		} else {
			fmt.Printf("Results saved to: %s\n", *outputFile)
		}
	}
}

func parseSizes(s string) ([]int, error) {
	var out []int
	for part := range strings.SplitSeq(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 2 {
			return nil, fmt.Errorf("size %q must be an integer >= 2", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func saveResultsToFile(filename string, results []benchmark.Measurement) error {
	file, err := os.Create(filename) //nolint:gosec // G304: output path comes from the user
	if err != nil {
		return err
	}
	if err := benchmark.WriteCSV(file, results); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
