package api

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net/http"
	"slices"
	"strconv"

	"h3_router/pkg/cellindex"
	"h3_router/pkg/routing"
	"h3_router/pkg/spatial"
)

const (
	defaultNodeLimit = 10_000
	maxNodeLimit     = 100_000
)

// Router is the routing capability the handlers depend on.
type Router interface {
	RouteLatLng(ctx context.Context, start, end routing.LatLng) (*routing.RouteResult, error)
	Reachable(ctx context.Context, origin routing.LatLng, threshold float64) (map[cellindex.Cell]float64, routing.NearestNode, error)
	Index() cellindex.Index
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	router  Router
	nodes   *spatial.Index
	stats   StatsResponse
	metrics *Metrics
}

// NewHandlers creates handlers with the given router and node index.
func NewHandlers(router Router, nodes *spatial.Index, stats StatsResponse, metrics *Metrics) *Handlers {
	return &Handlers{
		router:  router,
		nodes:   nodes,
		stats:   stats,
		metrics: metrics,
	}
}

// HandleRoute handles POST /api/v1/route. With ?format=geojson the path is
// returned as a GeoJSON feature.
func (h *Handlers) HandleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := validateCoord(req.Start); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "start")
		return
	}
	if err := validateCoord(req.End); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "end")
		return
	}

	result, err := h.router.RouteLatLng(r.Context(), toLatLng(req.Start), toLatLng(req.End))
	if err != nil {
		writeRoutingError(w, err)
		return
	}
	h.metrics.pathCells.Observe(float64(len(result.Path.Cells)))
	h.metrics.snapRings.Observe(float64(result.OriginSnap.K))
	h.metrics.snapRings.Observe(float64(result.DestinationSnap.K))

	idx := h.router.Index()
	if r.URL.Query().Get("format") == "geojson" {
		f := result.Path.Feature(idx)
		f.Properties["snapped_start"] = snapJSON(result.OriginSnap)
		f.Properties["snapped_end"] = snapJSON(result.DestinationSnap)
		w.Header().Set("Content-Type", "application/geo+json")
		json.NewEncoder(w).Encode(f)
		return
	}

	resp := RouteResponse{
		Kind:         result.Path.Kind.String(),
		TotalWeight:  result.Path.Weight,
		Cells:        make([]string, len(result.Path.Cells)),
		Geometry:     make([]LatLngJSON, 0, len(result.Path.Cells)),
		SnappedStart: snapJSON(result.OriginSnap),
		SnappedEnd:   snapJSON(result.DestinationSnap),
	}
	for i, c := range result.Path.Cells {
		resp.Cells[i] = c.String()
	}
	for _, p := range result.Path.LineString(idx) {
		resp.Geometry = append(resp.Geometry, LatLngJSON{Lat: p.Lat(), Lng: p.Lon()})
	}

	writeJSON(w, resp)
}

// HandleReachable handles POST /api/v1/reachable.
func (h *Handlers) HandleReachable(w http.ResponseWriter, r *http.Request) {
	var req ReachableRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validateCoord(req.Origin); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "origin")
		return
	}

	cells, snap, err := h.router.Reachable(r.Context(), toLatLng(req.Origin), req.Threshold)
	if err != nil {
		writeRoutingError(w, err)
		return
	}
	h.metrics.snapRings.Observe(float64(snap.K))

	idx := h.router.Index()
	resp := ReachableResponse{
		Origin: snapJSON(snap),
		Cells:  make([]ReachableCellJSON, 0, len(cells)),
	}
	for c, weight := range cells {
		lat, lng := idx.LatLng(c)
		resp.Cells = append(resp.Cells, ReachableCellJSON{Cell: c.String(), Weight: weight, Lat: lat, Lng: lng})
	}
	slices.SortFunc(resp.Cells, func(a, b ReachableCellJSON) int {
		if c := cmp.Compare(a.Weight, b.Weight); c != 0 {
			return c
		}
		return cmp.Compare(a.Cell, b.Cell)
	})

	writeJSON(w, resp)
}

// HandleNodes handles GET /api/v1/nodes?bbox=minLat,minLng,maxLat,maxLng[&limit=N].
func (h *Handlers) HandleNodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bound, err := spatial.ParseBBox(q.Get("bbox"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_bbox", "bbox")
		return
	}
	limit := defaultNodeLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxNodeLimit {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit")
			return
		}
		limit = n
	}

	nodes, truncated := h.nodes.Search(bound, limit)
	resp := NodesResponse{Nodes: make([]NodeJSON, len(nodes)), Truncated: truncated}
	for i, n := range nodes {
		resp.Nodes[i] = NodeJSON{Cell: n.Cell.String(), Lat: n.Lat, Lng: n.Lng}
	}
	writeJSON(w, resp)
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.stats)
}

// decodeJSON enforces the content type and decodes a small JSON body.
// It writes the error response itself and reports whether to continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return false
	}
	return true
}

func writeRoutingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, routing.ErrPointTooFar):
		writeError(w, http.StatusUnprocessableEntity, "point_too_far_from_graph", "")
	case errors.Is(err, routing.ErrNoPath):
		writeError(w, http.StatusNotFound, "no_route_found", "")
	case errors.Is(err, cellindex.ErrInvalidCoordinate):
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "")
	case errors.Is(err, routing.ErrInvalidThreshold):
		writeError(w, http.StatusBadRequest, "invalid_threshold", "threshold")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request_timeout", "")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func toLatLng(ll LatLngJSON) routing.LatLng {
	return routing.LatLng{Lat: ll.Lat, Lng: ll.Lng}
}

func snapJSON(n routing.NearestNode) SnapJSON {
	return SnapJSON{Cell: n.Node.String(), K: n.K, DistanceMeters: n.DistanceMeters}
}

func validateCoord(ll LatLngJSON) error {
	if math.IsNaN(ll.Lat) || math.IsNaN(ll.Lng) || math.IsInf(ll.Lat, 0) || math.IsInf(ll.Lng, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if ll.Lat < -90 || ll.Lat > 90 || ll.Lng < -180 || ll.Lng > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Field: field})
}
