package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"h3_router/pkg/api"
	"h3_router/pkg/cellindex"
	"h3_router/pkg/graph"
	"h3_router/pkg/routing"
	"h3_router/pkg/spatial"
)

func main() {
	graphPath := flag.String("graph", "graph.bin", "Path to preprocessed graph binary")
	port := flag.Int("port", 8080, "HTTP port")
	maxGap := flag.Int("max-gap", routing.DefaultMaxGap, "k-rings searched when bridging a query point to the graph")
	corsOrigin := flag.String("cors-origin", "", "CORS allowed origin (empty = same-origin)")
	flag.Parse()

	if *maxGap < 0 {
		log.Fatalf("Invalid max-gap %d", *maxGap)
	}

	start := time.Now()

	// Load graph.
	log.Printf("Loading graph from %s...", *graphPath)
	s, err := graph.ReadBinary(*graphPath)
	if err != nil {
		log.Fatalf("Failed to load graph: %v", err)
	}
	st := s.Stats()
	log.Printf("Loaded: %d nodes, %d edges, %d long edges at resolution %d",
		st.Nodes, st.Edges, st.LongEdges, st.Resolution)

	idx := cellindex.NewH3()
	router := routing.NewRouter(routing.NewEngine(s, idx), *maxGap)

	log.Println("Building R-tree spatial index...")
	nodes := spatial.New(s.Nodes(), idx)

	log.Printf("Ready in %s", time.Since(start).Round(time.Millisecond))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := api.NewMetrics(reg)

	// Setup HTTP server.
	cfg := api.DefaultConfig(fmt.Sprintf(":%d", *port))
	cfg.CORSOrigin = *corsOrigin

	stats := api.StatsResponse{
		NumNodes:     st.Nodes,
		NumEdges:     st.Edges,
		NumLongEdges: st.LongEdges,
		Resolution:   st.Resolution,
	}

	handlers := api.NewHandlers(router, nodes, stats, metrics)
	srv := api.NewServer(cfg, handlers, metrics)

	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}
