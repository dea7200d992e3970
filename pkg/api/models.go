package api

// RouteRequest is the JSON body for POST /api/v1/route.
type RouteRequest struct {
	Start LatLngJSON `json:"start"`
	End   LatLngJSON `json:"end"`
}

// LatLngJSON represents a lat/lng pair in JSON.
type LatLngJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SnapJSON describes how a query point was bridged to the graph.
type SnapJSON struct {
	Cell           string  `json:"cell"`
	K              int     `json:"k"`
	DistanceMeters float64 `json:"distance_meters"`
}

// RouteResponse is the JSON response for a successful route query.
type RouteResponse struct {
	Kind         string       `json:"kind"`
	TotalWeight  float64      `json:"total_weight"`
	Cells        []string     `json:"cells"`
	Geometry     []LatLngJSON `json:"geometry"`
	SnappedStart SnapJSON     `json:"snapped_start"`
	SnappedEnd   SnapJSON     `json:"snapped_end"`
}

// ReachableRequest is the JSON body for POST /api/v1/reachable.
type ReachableRequest struct {
	Origin    LatLngJSON `json:"origin"`
	Threshold float64    `json:"threshold"`
}

// ReachableCellJSON is one cell within the threshold.
type ReachableCellJSON struct {
	Cell   string  `json:"cell"`
	Weight float64 `json:"weight"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

// ReachableResponse lists reachable cells ordered by weight.
type ReachableResponse struct {
	Origin SnapJSON            `json:"origin"`
	Cells  []ReachableCellJSON `json:"cells"`
}

// NodeJSON is a graph node with its centroid.
type NodeJSON struct {
	Cell string  `json:"cell"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// NodesResponse is the JSON response for GET /api/v1/nodes.
type NodesResponse struct {
	Nodes     []NodeJSON `json:"nodes"`
	Truncated bool       `json:"truncated"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	NumNodes     int `json:"num_nodes"`
	NumEdges     int `json:"num_edges"`
	NumLongEdges int `json:"num_long_edges"`
	Resolution   int `json:"resolution"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
