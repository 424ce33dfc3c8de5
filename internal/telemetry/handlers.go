package telemetry

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talosprotocol/aiops-engine/internal/version"
)

// RecentScoreProvider is satisfied by *ledger.Ledger; kept as a small
// interface here so telemetry never imports the ledger package
// directly (the ledger is optional and may be nil).
type RecentScoreProvider interface {
	Recent(limit int) []RecentScore
}

// RecentScore is one row of durable score history, supplementing the
// in-memory ScoreHistory exposed by /metrics/integrity.
type RecentScore struct {
	TraceID   string  `json:"trace_id"`
	Score     float64 `json:"score"`
	ScoredAt  string  `json:"scored_at"`
}

// Server wires the engine's telemetry into HTTP handlers.
type Server struct {
	gauges *Gauges
	ledger RecentScoreProvider // may be nil
}

// NewServer creates a telemetry HTTP handler set. ledger may be nil,
// in which case /metrics/recent-scores always returns an empty array.
func NewServer(gauges *Gauges, ledger RecentScoreProvider) *Server {
	return &Server{gauges: gauges, ledger: ledger}
}

// Register attaches all telemetry routes to the given gin engine.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/health", s.health)
	r.GET("/metrics/integrity", s.integrity)
	r.GET("/metrics/recent-scores", s.recentScores)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gauges.Registry, promhttp.HandlerOpts{})))
}

func (s *Server) health(c *gin.Context) {
	snap := s.gauges.Current()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     "aiops-engine",
		"version":     version.Full(),
		"model_ready": snap.ModelReady,
	})
}

func (s *Server) integrity(c *gin.Context) {
	snap := s.gauges.Current()

	reason := "window has fewer than the readiness threshold of traces"
	if snap.ModelReady {
		reason = "window has absorbed enough traces to be trusted"
	}

	c.JSON(http.StatusOK, gin.H{
		"model_ready":               snap.ModelReady,
		"readiness_reason":          reason,
		"training_window_traces":    snap.WindowSize,
		"integrity_score":           snap.Integrity,
		"recent_anomaly_scores_avg": snap.RecentAvgScore,
		"stats": gin.H{
			"states":        snap.StateCount,
			"edges":         snap.EdgeCount,
			"active_traces": snap.ActiveTraces,
		},
	})
}

func (s *Server) recentScores(c *gin.Context) {
	if s.ledger == nil {
		c.JSON(http.StatusOK, []RecentScore{})
		return
	}
	c.JSON(http.StatusOK, s.ledger.Recent(100))
}
