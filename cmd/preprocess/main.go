package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/paulmach/orb/geojson"

	"h3_router/pkg/cellindex"
	"h3_router/pkg/graph"
	osmparser "h3_router/pkg/osm"
	"h3_router/pkg/spatial"
)

func main() {
	input := flag.String("input", "", "Path to .osm.pbf file")
	output := flag.String("output", "graph.bin", "Output binary graph file path")
	resolution := flag.Int("resolution", 9, "H3 resolution of the graph cells (0-15)")
	bbox := flag.String("bbox", "", "Bounding box filter: minLat,minLng,maxLat,maxLng (e.g. 52.33,13.08,52.68,13.76)")
	largest := flag.Bool("largest-component", false, "Keep only the largest weakly connected component")
	workers := flag.Int("workers", runtime.NumCPU(), "Goroutines used for long edge compaction")
	minLong := flag.Int("min-long-edge", graph.DefaultMinLongEdgeLength, "Shortest run of hops stored as a long edge")
	noCompaction := flag.Bool("no-compaction", false, "Skip long edge compaction")
	coveredArea := flag.String("covered-area", "", "Also write the area covered by the graph as GeoJSON to this path")
	coverageReduce := flag.Int("covered-area-reduce", 3, "Resolutions to coarsen by before outlining the covered area")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: preprocess --input <file.osm.pbf> [--output graph.bin] [--resolution 9] [--bbox minLat,minLng,maxLat,maxLng] [--largest-component]")
		os.Exit(1)
	}
	if *resolution < 0 || *resolution > cellindex.MaxH3Resolution {
		log.Fatalf("Invalid resolution %d (expected 0-%d)", *resolution, cellindex.MaxH3Resolution)
	}

	opts := osmparser.ParseOptions{Resolution: *resolution}
	if *bbox != "" {
		b, err := spatial.ParseBBox(*bbox)
		if err != nil {
			log.Fatalf("Invalid bbox: %v", err)
		}
		opts.BBox = b
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lng [%.4f, %.4f]", b.Min.Lat(), b.Max.Lat(), b.Min.Lon(), b.Max.Lon())
	}

	start := time.Now()
	idx := cellindex.NewH3()

	// Step 1: Parse OSM data.
	log.Println("Opening OSM file...")
	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("Failed to open input file: %v", err)
	}
	defer f.Close()

	log.Printf("Parsing OSM data at resolution %d...", *resolution)
	parsed, err := osmparser.Parse(context.Background(), f, idx, opts)
	if err != nil {
		log.Fatalf("Failed to parse OSM data: %v", err)
	}

	// Step 2: Build graph. Ways crossing the same cells with different
	// classes keep the cheaper hop.
	log.Println("Building graph...")
	bopts := graph.DefaultBuildOptions()
	bopts.Conflicts = graph.ConflictKeepMinimum
	bopts.SkipInvalidSegments = true
	bopts.Workers = *workers
	bopts.MinLongEdgeLength = *minLong
	bopts.DisableCompaction = *noCompaction
	s, err := graph.Build(idx, slices.Values(parsed.Segments), bopts)
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}

	// Step 3: Extract largest connected component.
	if *largest && s.NodeCount() > 0 {
		log.Println("Extracting largest connected component...")
		componentNodes := graph.LargestComponent(s)
		log.Printf("Largest component: %d nodes (%.1f%%)", len(componentNodes), float64(len(componentNodes))/float64(s.NodeCount())*100)
		s = graph.FilterToComponent(s, componentNodes)
		log.Printf("Filtered graph: %d nodes, %d edges, %d long edges", s.NodeCount(), s.EdgeCount(), s.LongEdgeCount())
	}

	// Step 4: Serialize to binary.
	log.Printf("Writing binary to %s...", *output)
	if err := graph.WriteBinary(*output, s); err != nil {
		log.Fatalf("Failed to write binary: %v", err)
	}

	// Step 5: Optional coverage outline.
	if *coveredArea != "" {
		log.Printf("Writing covered area to %s...", *coveredArea)
		if err := writeCoveredArea(*coveredArea, idx, s, *coverageReduce); err != nil {
			log.Fatalf("Failed to write covered area: %v", err)
		}
	}

	info, _ := os.Stat(*output)
	elapsed := time.Since(start)
	log.Printf("Done in %s. Output: %s (%.1f MB)", elapsed.Round(time.Second), *output, float64(info.Size())/(1024*1024))
}

func writeCoveredArea(path string, idx cellindex.H3, s *graph.Store, reduceBy int) error {
	mp, err := idx.CoveredArea(s.Nodes(), reduceBy)
	if err != nil {
		return err
	}
	log.Printf("Covered area: %d polygons", len(mp))

	f := geojson.NewFeature(mp)
	f.Properties["resolution"] = max(s.Resolution()-reduceBy, 0)
	fc := geojson.NewFeatureCollection().Append(f)
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
