// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 席割り当て結果のラベル値
const (
	AssignResultSuccess  = "success"
	AssignResultConflict = "conflict"
	AssignResultBusy     = "busy"
	AssignResultNotFound = "not_found"
	AssignResultError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やミドルウェアから利用する。
type MetricsCollector interface {
	RecordSeatAssignment(result string)
	RecordAssignLatency(duration time.Duration)
	RecordTableCreated(seats int)
	RecordGuestbookWrite(sheet string, ok bool)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	seatAssignments  *prometheus.CounterVec
	assignLatency    prometheus.Histogram
	tablesCreated    prometheus.Counter
	seatsProvisioned prometheus.Counter
	guestbookWrites  *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		seatAssignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guestseat_seat_assignments_total",
			Help: "結果別の席割り当て要求数",
		}, []string{"result"}),
		assignLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "guestseat_seat_assignment_latency_seconds",
			Help:    "席割り当てトランザクションのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tablesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guestseat_tables_created_total",
			Help: "作成されたテーブルの合計数",
		}),
		seatsProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guestseat_seats_provisioned_total",
			Help: "テーブル作成で追加された席の合計数",
		}),
		guestbookWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guestseat_guestbook_writes_total",
			Help: "シート別・結果別のゲストブック書き込み数",
		}, []string{"sheet", "result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guestseat_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.seatAssignments,
		c.assignLatency,
		c.tablesCreated,
		c.seatsProvisioned,
		c.guestbookWrites,
		c.httpStatus,
	)

	return c
}

// RecordSeatAssignment は席割り当ての結果を記録する。
func (c *Collector) RecordSeatAssignment(result string) {
	c.seatAssignments.WithLabelValues(result).Inc()
}

// RecordAssignLatency は席割り当てのレイテンシを記録する。
func (c *Collector) RecordAssignLatency(duration time.Duration) {
	c.assignLatency.Observe(duration.Seconds())
}

// RecordTableCreated はテーブル作成と追加された席数を記録する。
func (c *Collector) RecordTableCreated(seats int) {
	c.tablesCreated.Inc()
	c.seatsProvisioned.Add(float64(seats))
}

// RecordGuestbookWrite はゲストブックへの書き込み結果を記録する。
func (c *Collector) RecordGuestbookWrite(sheet string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.guestbookWrites.WithLabelValues(sheet, result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordSeatAssignment(string)       {}
func (Nop) RecordAssignLatency(time.Duration) {}
func (Nop) RecordTableCreated(int)            {}
func (Nop) RecordGuestbookWrite(string, bool) {}
func (Nop) RecordHTTPStatus(int)              {}
