package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/guestseat/internal/model"
	"github.com/hitoshi/guestseat/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Login(ctx context.Context, name, phone string) (*model.User, error)
	Get(ctx context.Context, id int64) (*model.User, error)
	List(ctx context.Context, q string) ([]*model.User, error)
	Create(ctx context.Context, in user.CreateInput) (*model.User, error)
	Update(ctx context.Context, id int64, in user.UpdateInput) (*model.User, error)
	SetComing(ctx context.Context, id int64, coming bool) error
	Areas(ctx context.Context) ([]string, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Phone          string  `json:"phone"`
	Phone2         *string `json:"phone2"`
	UserType       string  `json:"user_type"`
	ReserveCount   int     `json:"reserve_count"`
	NumGuests      int     `json:"num_guests"`
	IsComing       *string `json:"is_coming"`
	Area           *string `json:"area"`
	Vegan          int     `json:"vegan"`
	Kids           int     `json:"kids"`
	Meat           int     `json:"meat"`
	GlutenFree     int     `json:"gluten_free"`
	TransportFrom  *string `json:"transport_from"`
	TransportSeats int     `json:"transport_seats"`
}

// loginRequest は電話番号ログインのリクエストボディ。
type loginRequest struct {
	Name  string `json:"name" validate:"max=100"`
	Phone string `json:"phone" validate:"required,max=32"`
}

// createUserRequest はユーザー登録のリクエストボディ。
type createUserRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Phone    string  `json:"phone" validate:"required,max=32"`
	Phone2   *string `json:"phone2" validate:"omitempty,max=32"`
	UserType string  `json:"user_type" validate:"max=50"`
}

// updateUserRequest はユーザー部分更新のリクエストボディ。
// 省略またはnullのフィールドは変更しない。seat_ids を含む場合は席も置き換える。
type updateUserRequest struct {
	Name           *string  `json:"name" validate:"omitempty,max=100"`
	Phone          *string  `json:"phone" validate:"omitnil,min=1,max=32"`
	Phone2         *string  `json:"phone2" validate:"omitempty,max=32"`
	UserType       *string  `json:"user_type" validate:"omitempty,max=50"`
	ReserveCount   *int     `json:"reserve_count" validate:"omitempty,gte=0"`
	NumGuests      *int     `json:"num_guests" validate:"omitempty,gte=0"`
	IsComing       *string  `json:"is_coming" validate:"omitempty,oneof=כן לא"`
	Area           *string  `json:"area" validate:"omitempty,max=100"`
	Vegan          *int     `json:"vegan" validate:"omitempty,gte=0"`
	Kids           *int     `json:"kids" validate:"omitempty,gte=0"`
	Meat           *int     `json:"meat" validate:"omitempty,gte=0"`
	GlutenFree     *int     `json:"gluten_free" validate:"omitempty,gte=0"`
	TransportFrom  *string  `json:"transport_from" validate:"omitempty,max=100"`
	TransportSeats *int     `json:"transport_seats" validate:"omitempty,gte=0"`
	SeatIDs        *[]int64 `json:"seat_ids" validate:"omitempty,max=200,dive,gt=0"`
}

// comingRequest は出欠回答のリクエストボディ。
type comingRequest struct {
	Coming *bool `json:"coming" validate:"required"`
}

// Login は電話番号でログインし、未登録なら自動登録する。
// POST /api/users/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.Login(r.Context(), req.Name, req.Phone)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// ListUsers はユーザー一覧を返す。qを指定すると名前・電話番号の部分一致で絞り込む。
// GET /api/users?q=
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	results := make([]userResponse, len(users))
	for i, u := range users {
		results[i] = toUserResponse(u)
	}
	writeJSON(w, http.StatusOK, results)
}

// GetUser は指定IDのユーザーを返す。
// GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// CreateUser はユーザーを登録する。
// POST /api/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.Create(r.Context(), user.CreateInput{
		Name:     req.Name,
		Phone:    req.Phone,
		Phone2:   req.Phone2,
		UserType: req.UserType,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// UpdateUser はユーザーを部分更新する。
// PUT /api/users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.Update(r.Context(), id, req.toInput())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// SetComing は出欠回答を更新する。
// PUT /api/users/{id}/coming
func (h *UserHandler) SetComing(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req comingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.SetComing(r.Context(), id, *req.Coming); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeOK(w)
}

// ListAreas はユーザーに設定されているエリア名の一覧を返す。
// GET /api/users/areas
func (h *UserHandler) ListAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := h.service.Areas(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, areas)
}

// --- ヘルパー関数 ---

func (req *updateUserRequest) toInput() user.UpdateInput {
	in := user.UpdateInput{
		Patch: model.UserPatch{
			Name:           req.Name,
			Phone:          req.Phone,
			Phone2:         req.Phone2,
			UserType:       req.UserType,
			ReserveCount:   req.ReserveCount,
			NumGuests:      req.NumGuests,
			Area:           req.Area,
			Vegan:          req.Vegan,
			Kids:           req.Kids,
			Meat:           req.Meat,
			GlutenFree:     req.GlutenFree,
			TransportFrom:  req.TransportFrom,
			TransportSeats: req.TransportSeats,
		},
	}
	if req.IsComing != nil {
		a := model.Attendance(*req.IsComing)
		in.Patch.IsComing = &a
	}
	if req.SeatIDs != nil {
		in.SeatIDs = *req.SeatIDs
		in.HasSeatIDs = true
	}
	return in
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:             u.ID,
		Name:           u.Name,
		Phone:          u.Phone,
		Phone2:         u.Phone2,
		UserType:       u.UserType,
		ReserveCount:   u.ReserveCount,
		NumGuests:      u.NumGuests,
		Area:           u.Area,
		Vegan:          u.Vegan,
		Kids:           u.Kids,
		Meat:           u.Meat,
		GlutenFree:     u.GlutenFree,
		TransportFrom:  u.TransportFrom,
		TransportSeats: u.TransportSeats,
	}
	if u.IsComing != nil {
		s := string(*u.IsComing)
		resp.IsComing = &s
	}
	return resp
}
