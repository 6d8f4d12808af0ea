package handler

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Stats tracks server-wide counters
type Stats struct {
	startTime     time.Time
	requestCount  atomic.Int64
	wsMessagesIn  atomic.Int64
	wsMessagesOut atomic.Int64
	rateLimited   atomic.Int64
}

var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests()      { s.requestCount.Add(1) }
func (s *Stats) IncWSMessagesIn()  { s.wsMessagesIn.Add(1) }
func (s *Stats) IncWSMessagesOut() { s.wsMessagesOut.Add(1) }
func (s *Stats) IncRateLimited()   { s.rateLimited.Add(1) }

type DeviceCounter interface {
	Count() int
	DeviceCount() int
}

type ClientCounter interface {
	ClientCount() int
}

type StatsHandler struct {
	store   DeviceCounter
	results ResultSource
	clients ClientCounter
}

func NewStatsHandler(store DeviceCounter, results ResultSource, clients ClientCounter) *StatsHandler {
	return &StatsHandler{store: store, results: results, clients: clients}
}

type StatsResponse struct {
	Server    ServerStatsResponse    `json:"server"`
	Store     StoreStatsResponse     `json:"store"`
	Cycle     CycleStatsResponse     `json:"cycle"`
	WebSocket WebSocketStatsResponse `json:"websocket"`
	Go        GoStatsResponse        `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	RateLimited   int64     `json:"rate_limited"`
}

type StoreStatsResponse struct {
	Records int `json:"records"`
	Devices int `json:"devices"`
}

type CycleStatsResponse struct {
	Positions  int       `json:"positions"`
	Snapshots  int       `json:"snapshots"`
	ComputedAt time.Time `json:"computed_at"`
}

type WebSocketStatsResponse struct {
	Connections int   `json:"connections"`
	MessagesIn  int64 `json:"messages_in"`
	MessagesOut int64 `json:"messages_out"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(ServerStats.startTime)
	res := h.results.Result()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	w.Header().Set("Cache-Control", "no-cache")
	respondJSON(w, http.StatusOK, StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     ServerStats.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
			RateLimited:   ServerStats.rateLimited.Load(),
		},
		Store: StoreStatsResponse{
			Records: h.store.Count(),
			Devices: h.store.DeviceCount(),
		},
		Cycle: CycleStatsResponse{
			Positions:  len(res.Positions),
			Snapshots:  len(res.Snapshots),
			ComputedAt: res.ComputedAt,
		},
		WebSocket: WebSocketStatsResponse{
			Connections: h.clients.ClientCount(),
			MessagesIn:  ServerStats.wsMessagesIn.Load(),
			MessagesOut: ServerStats.wsMessagesOut.Load(),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	})
}
