package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/guestseat/internal/model"
)

// SeatServiceInterface は席ハンドラーが必要とするサービスインターフェース。
type SeatServiceInterface interface {
	// ListSeats は全席を返す。
	ListSeats(ctx context.Context) ([]*model.Seat, error)
	// ListSeatsByUser は指定ユーザーの席を返す。
	ListSeatsByUser(ctx context.Context, userID int64) ([]*model.Seat, error)
	// AssignSeats はユーザーの席を要求された集合に置き換える。
	AssignSeats(ctx context.Context, seatIDs []int64, userID int64) error
	// CreateTable はエリアに新しいテーブルを作成し、テーブル番号を返す。
	CreateTable(ctx context.Context, area string, capacity int) (int, error)
}

// SeatHandler は席管理のHTTPハンドラー。
type SeatHandler struct {
	service SeatServiceInterface
}

// NewSeatHandler はSeatHandlerを生成する。
func NewSeatHandler(service SeatServiceInterface) *SeatHandler {
	return &SeatHandler{service: service}
}

// seatResponse は席情報のAPIレスポンス。
type seatResponse struct {
	ID      int64   `json:"id"`
	Row     int     `json:"row"`
	Col     int     `json:"col"`
	Area    *string `json:"area"`
	Status  string  `json:"status"`
	OwnerID *int64  `json:"owner_id"`
}

// assignSeatsRequest は席割り当てリクエストのボディ。
// seat_ids が空の場合はユーザーの席を全て解放する。
type assignSeatsRequest struct {
	SeatIDs []int64 `json:"seat_ids" validate:"max=200,dive,gt=0"`
	UserID  int64   `json:"user_id" validate:"required,gt=0"`
}

// createTableRequest はテーブル作成リクエストのボディ。capacity省略時は既定の席数。
type createTableRequest struct {
	Area     string `json:"area" validate:"required,max=100"`
	Capacity int    `json:"capacity" validate:"gte=0"`
}

// createTableResponse はテーブル作成のAPIレスポンス。
type createTableResponse struct {
	Area       string `json:"area"`
	TableIndex int    `json:"table_index"`
}

// ListSeats は全席を返す。
// GET /api/seats
func (h *SeatHandler) ListSeats(w http.ResponseWriter, r *http.Request) {
	seats, err := h.service.ListSeats(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeatResponses(seats))
}

// ListSeatsByUser は指定ユーザーの席を返す。
// GET /api/seats/user/{uid}
func (h *SeatHandler) ListSeatsByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseIDParam(w, r, "uid")
	if !ok {
		return
	}

	seats, err := h.service.ListSeatsByUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeatResponses(seats))
}

// AssignSeats はユーザーの席を置き換える。
// PUT /api/seats/assign
func (h *SeatHandler) AssignSeats(w http.ResponseWriter, r *http.Request) {
	var req assignSeatsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.AssignSeats(r.Context(), req.SeatIDs, req.UserID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeOK(w)
}

// CreateTable はエリアに新しいテーブルを作成する。
// POST /api/tables
func (h *SeatHandler) CreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	index, err := h.service.CreateTable(r.Context(), req.Area, req.Capacity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createTableResponse{
		Area:       req.Area,
		TableIndex: index,
	})
}

// --- ヘルパー関数 ---

func toSeatResponses(seats []*model.Seat) []seatResponse {
	results := make([]seatResponse, len(seats))
	for i, s := range seats {
		results[i] = seatResponse{
			ID:      s.ID,
			Row:     s.Row,
			Col:     s.Col,
			Area:    s.Area,
			Status:  string(s.Status),
			OwnerID: s.OwnerID,
		}
	}
	return results
}
