package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/guestseat/internal/model"
)

// GuestbookServiceInterface はゲストブックハンドラーが必要とするサービスインターフェース。
type GuestbookServiceInterface interface {
	AddWish(ctx context.Context, name, text string) error
	ListWishes(ctx context.Context) []model.Wish
	AddSingle(ctx context.Context, name, gender, about string) error
	ListSingles(ctx context.Context) *model.SinglesBoard
	AddFeedback(ctx context.Context, name, feedback string) error
}

// GuestbookHandler は祝福メッセージ・独身者コーナー・フィードバックのHTTPハンドラー。
type GuestbookHandler struct {
	service GuestbookServiceInterface
}

// NewGuestbookHandler はGuestbookHandlerを生成する。
func NewGuestbookHandler(service GuestbookServiceInterface) *GuestbookHandler {
	return &GuestbookHandler{service: service}
}

type blessingRequest struct {
	Name     string `json:"name" validate:"max=100"`
	Blessing string `json:"blessing" validate:"required,max=2000"`
}

type singleRequest struct {
	Name   string `json:"name" validate:"required,max=100"`
	Gender string `json:"gender" validate:"required"`
	About  string `json:"about" validate:"max=2000"`
}

type feedbackRequest struct {
	Name     string `json:"name" validate:"max=100"`
	Feedback string `json:"feedback" validate:"required,max=2000"`
}

type wishResponse struct {
	Name     string `json:"name"`
	Blessing string `json:"blessing"`
}

type singleResponse struct {
	Name  string `json:"name"`
	About string `json:"about"`
}

type singlesBoardResponse struct {
	Men   []singleResponse `json:"men"`
	Women []singleResponse `json:"women"`
}

// AddBlessing は祝福メッセージを保存する。
// POST /api/blessing
func (h *GuestbookHandler) AddBlessing(w http.ResponseWriter, r *http.Request) {
	var req blessingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.AddWish(r.Context(), req.Name, req.Blessing); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeOK(w)
}

// ListBlessings は祝福メッセージを新しい順に返す。
// GET /api/blessings
func (h *GuestbookHandler) ListBlessings(w http.ResponseWriter, r *http.Request) {
	wishes := h.service.ListWishes(r.Context())
	results := make([]wishResponse, len(wishes))
	for i, wish := range wishes {
		results[i] = wishResponse{Name: wish.Name, Blessing: wish.Blessing}
	}
	writeJSON(w, http.StatusOK, results)
}

// AddSingle は独身者コーナーに自己紹介を追加する。
// POST /api/singles
func (h *GuestbookHandler) AddSingle(w http.ResponseWriter, r *http.Request) {
	var req singleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.AddSingle(r.Context(), req.Name, req.Gender, req.About); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeOK(w)
}

// ListSingles は独身者コーナーを性別ごとに返す。
// GET /api/singles
func (h *GuestbookHandler) ListSingles(w http.ResponseWriter, r *http.Request) {
	board := h.service.ListSingles(r.Context())
	resp := singlesBoardResponse{
		Men:   make([]singleResponse, 0),
		Women: make([]singleResponse, 0),
	}
	if board != nil {
		for _, s := range board.Men {
			resp.Men = append(resp.Men, singleResponse{Name: s.Name, About: s.About})
		}
		for _, s := range board.Women {
			resp.Women = append(resp.Women, singleResponse{Name: s.Name, About: s.About})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// AddFeedback は匿名メッセージを保存する。
// POST /api/feedback
func (h *GuestbookHandler) AddFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.AddFeedback(r.Context(), req.Name, req.Feedback); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeOK(w)
}
