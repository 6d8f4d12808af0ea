package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"parkwatch/internal/domain"
	"parkwatch/internal/ingestor"
	"parkwatch/internal/metrics"
	"parkwatch/internal/occupancy"
	"parkwatch/internal/period"
	"parkwatch/internal/report"
	"parkwatch/internal/store"
	"parkwatch/internal/view"
	"parkwatch/pkg/gpsapi"
)

const maxIngestBody = 4 << 20

// ResultSource exposes the output of the last poll cycle
type ResultSource interface {
	Result() *ingestor.Result
}

type Sink interface {
	Add(positions []domain.Position) int
}

type ReportSource interface {
	Hourly(ctx context.Context, k period.Keyword) report.Hourly
}

type Options struct {
	Catalog    domain.Catalog
	Location   *time.Location
	LiveWindow time.Duration
}

type HTTPHandler struct {
	results ResultSource
	sink    Sink
	reports ReportSource
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

func NewHTTPHandler(results ResultSource, sink Sink, reports ReportSource, opts Options, logger *slog.Logger) *HTTPHandler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.LiveWindow <= 0 {
		opts.LiveWindow = view.DefaultLiveWindow
	}
	return &HTTPHandler{
		results: results,
		sink:    sink,
		reports: reports,
		opts:    opts,
		logger:  logger.With("component", "http_handler"),
		now:     time.Now,
	}
}

// Routes registers the API endpoints on mux.
func Routes(mux *http.ServeMux, h *HTTPHandler) {
	mux.HandleFunc("POST /v1/positions", h.Ingest)
	mux.HandleFunc("GET /v1/positions", h.ListPositions)
	mux.HandleFunc("GET /v1/snapshots", h.Snapshots)
	mux.HandleFunc("GET /v1/occupancy", h.Occupancy)
	mux.HandleFunc("GET /v1/zones", h.ListZones)
	mux.HandleFunc("GET /v1/zones/{name}", h.GetZone)
	mux.HandleFunc("GET /v1/history", h.History)
	mux.HandleFunc("GET /v1/reports/hourly", h.HourlyReport)
	mux.HandleFunc("POST /v1/view", h.View)
}

type IngestResponse struct {
	Accepted int `json:"accepted"`
	Skipped  int `json:"skipped"`
}

// Ingest stores one record or an array of records.
func (h *HTTPHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	positions, skipped, err := gpsapi.Decode(body, h.opts.Location)
	if err != nil {
		if errors.Is(err, gpsapi.ErrEmptyBody) {
			respondError(w, http.StatusBadRequest, "empty body")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	accepted := h.sink.Add(positions)
	skipped += len(positions) - accepted
	metrics.RecordIngest("http", accepted, skipped)

	if accepted == 0 {
		respondError(w, http.StatusBadRequest, "no usable records: latitude, longitude and timestamp are required")
		return
	}

	h.logger.Debug("positions ingested", "accepted", accepted, "skipped", skipped)
	respondJSON(w, http.StatusCreated, IngestResponse{Accepted: accepted, Skipped: skipped})
}

type PositionsResponse struct {
	Positions  []domain.Position `json:"positions"`
	Count      int               `json:"count"`
	ServerTime time.Time         `json:"serverTime"`
}

// ListPositions returns the current record set newest first.
func (h *HTTPHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{DeviceID: q.Get("deviceId")}

	if bboxStr := q.Get("bbox"); bboxStr != "" {
		parts := strings.Split(bboxStr, ",")
		if len(parts) != 4 {
			respondError(w, http.StatusBadRequest, "invalid bbox format: expected minLat,minLng,maxLat,maxLng")
			return
		}
		bbox, err := parseBBox(parts)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid bbox values: "+err.Error())
			return
		}
		opts.BBox = bbox
	}

	var err error
	if opts.Since, err = parseTimeParam(q.Get("since")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid since: "+err.Error())
		return
	}
	if opts.Until, err = parseTimeParam(q.Get("until")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid until: "+err.Error())
		return
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = limit
	}

	positions := store.Filter(h.results.Result().Positions, opts)
	respondJSON(w, http.StatusOK, PositionsResponse{
		Positions:  positions,
		Count:      len(positions),
		ServerTime: h.now(),
	})
}

type SnapshotsResponse struct {
	Snapshots  []domain.Snapshot `json:"snapshots"`
	Count      int               `json:"count"`
	ComputedAt time.Time         `json:"computedAt"`
}

func (h *HTTPHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	res := h.results.Result()
	respondJSON(w, http.StatusOK, SnapshotsResponse{
		Snapshots:  res.Snapshots,
		Count:      len(res.Snapshots),
		ComputedAt: res.ComputedAt,
	})
}

type OccupancyResponse struct {
	Index      int                `json:"index"`
	BatchTime  *time.Time         `json:"batchTime"`
	Occupancy  []domain.Occupancy `json:"occupancy"`
	ComputedAt time.Time          `json:"computedAt"`
}

// Occupancy classifies the newest snapshot, or the one selected by ?index=.
func (h *HTTPHandler) Occupancy(w http.ResponseWriter, r *http.Request) {
	res := h.results.Result()
	idx := len(res.Snapshots) - 1

	if s := r.URL.Query().Get("index"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n >= len(res.Snapshots) {
			respondError(w, http.StatusBadRequest, "index out of range")
			return
		}
		idx = n
	}

	resp := OccupancyResponse{Index: idx, Occupancy: res.Occupancy, ComputedAt: res.ComputedAt}
	if idx >= 0 {
		snap := res.Snapshots[idx]
		resp.Occupancy = occupancy.Ordered(occupancy.Classify(snap, h.opts.Catalog), h.opts.Catalog)
		if ts := snap.Latest(); !ts.IsZero() {
			resp.BatchTime = &ts
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

type ZoneResponse struct {
	domain.Zone
	Occupancy  domain.Occupancy `json:"occupancy"`
	Directions string           `json:"directions,omitempty"`
}

type ZonesResponse struct {
	MainView domain.MapView `json:"mainView"`
	Zones    []ZoneResponse `json:"zones"`
}

func (h *HTTPHandler) zoneResponse(z domain.Zone, occ []domain.Occupancy) ZoneResponse {
	resp := ZoneResponse{Zone: z, Occupancy: occupancy.Evaluate(z, 0), Directions: z.DirectionsURL()}
	for _, o := range occ {
		if o.Zone == z.Name {
			resp.Occupancy = o
			break
		}
	}
	return resp
}

func (h *HTTPHandler) ListZones(w http.ResponseWriter, r *http.Request) {
	occ := h.results.Result().Occupancy
	zones := make([]ZoneResponse, 0, len(h.opts.Catalog.Zones))
	for _, z := range h.opts.Catalog.Zones {
		zones = append(zones, h.zoneResponse(z, occ))
	}
	respondJSON(w, http.StatusOK, ZonesResponse{MainView: h.opts.Catalog.MainView, Zones: zones})
}

func (h *HTTPHandler) GetZone(w http.ResponseWriter, r *http.Request) {
	z, err := h.opts.Catalog.Zone(r.PathValue("name"))
	if err != nil {
		respondError(w, http.StatusNotFound, "zone not found")
		return
	}
	respondJSON(w, http.StatusOK, h.zoneResponse(z, h.results.Result().Occupancy))
}

type HistoryResponse struct {
	Period    period.Keyword    `json:"period"`
	Range     period.Range      `json:"range"`
	TimeRange string            `json:"timeRange"`
	Positions []domain.Position `json:"positions"`
	Count     int               `json:"count"`
}

// History filters the record set to a period and a daily hour window.
func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	k := period.Normalize(period.Keyword(q.Get("period")))

	tr := period.Presets[0]
	if s := q.Get("range"); s != "" {
		var err error
		if tr, err = period.ParseTimeRange(s); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	now := h.now().In(h.opts.Location)
	rng := period.Resolve(k, now)
	positions := period.FilterByRange(h.results.Result().Positions, rng)
	positions = period.FilterByHourRange(positions, tr.StartHour, tr.EndHour, h.opts.Location)

	respondJSON(w, http.StatusOK, HistoryResponse{
		Period:    k,
		Range:     rng,
		TimeRange: tr.String(),
		Positions: positions,
		Count:     len(positions),
	})
}

func (h *HTTPHandler) HourlyReport(w http.ResponseWriter, r *http.Request) {
	k := period.Normalize(period.Keyword(r.URL.Query().Get("period")))
	respondJSON(w, http.StatusOK, h.reports.Hourly(r.Context(), k))
}

type ViewRequest struct {
	State  *view.State `json:"state"`
	Action view.Action `json:"action"`
}

// startState is the client-held state, or the initial one when absent. An
// empty view name means MAIN.
func (req ViewRequest) startState() view.State {
	if req.State == nil {
		return view.Initial()
	}
	state := *req.State
	if state.ActiveView == "" {
		state.ActiveView = view.MainView
	}
	return state
}

// View applies one transition to a client-held state and renders the result.
func (h *HTTPHandler) View(w http.ResponseWriter, r *http.Request) {
	var req ViewRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	snapshots := h.results.Result().Snapshots
	next, err := req.startState().Apply(req.Action, len(snapshots), h.opts.Catalog)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, view.Render(next, snapshots, h.opts.Catalog, h.now(), h.opts.LiveWindow))
}

func parseBBox(parts []string) (*domain.BoundingBox, error) {
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	bbox := &domain.BoundingBox{MinLat: vals[0], MinLng: vals[1], MaxLat: vals[2], MaxLng: vals[3]}
	if err := bbox.Validate(); err != nil {
		return nil, err
	}
	return bbox, nil
}

func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339, s)
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
