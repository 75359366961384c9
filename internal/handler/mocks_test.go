package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/guestseat/internal/model"
	"github.com/hitoshi/guestseat/internal/user"
)

// --- モック定義 ---

// mockSeatService はSeatServiceInterfaceのモック実装。
type mockSeatService struct {
	listSeatsFn       func(ctx context.Context) ([]*model.Seat, error)
	listSeatsByUserFn func(ctx context.Context, userID int64) ([]*model.Seat, error)
	assignSeatsFn     func(ctx context.Context, seatIDs []int64, userID int64) error
	createTableFn     func(ctx context.Context, area string, capacity int) (int, error)
}

func (m *mockSeatService) ListSeats(ctx context.Context) ([]*model.Seat, error) {
	if m.listSeatsFn != nil {
		return m.listSeatsFn(ctx)
	}
	return nil, nil
}

func (m *mockSeatService) ListSeatsByUser(ctx context.Context, userID int64) ([]*model.Seat, error) {
	if m.listSeatsByUserFn != nil {
		return m.listSeatsByUserFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockSeatService) AssignSeats(ctx context.Context, seatIDs []int64, userID int64) error {
	if m.assignSeatsFn != nil {
		return m.assignSeatsFn(ctx, seatIDs, userID)
	}
	return nil
}

func (m *mockSeatService) CreateTable(ctx context.Context, area string, capacity int) (int, error) {
	if m.createTableFn != nil {
		return m.createTableFn(ctx, area, capacity)
	}
	return 1, nil
}

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	loginFn     func(ctx context.Context, name, phone string) (*model.User, error)
	getFn       func(ctx context.Context, id int64) (*model.User, error)
	listFn      func(ctx context.Context, q string) ([]*model.User, error)
	createFn    func(ctx context.Context, in user.CreateInput) (*model.User, error)
	updateFn    func(ctx context.Context, id int64, in user.UpdateInput) (*model.User, error)
	setComingFn func(ctx context.Context, id int64, coming bool) error
	areasFn     func(ctx context.Context) ([]string, error)
}

func (m *mockUserService) Login(ctx context.Context, name, phone string) (*model.User, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, name, phone)
	}
	return &model.User{ID: 1, Name: name, Phone: phone}, nil
}

func (m *mockUserService) Get(ctx context.Context, id int64) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &model.User{ID: id}, nil
}

func (m *mockUserService) List(ctx context.Context, q string) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return nil, nil
}

func (m *mockUserService) Create(ctx context.Context, in user.CreateInput) (*model.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return &model.User{ID: 1, Name: in.Name, Phone: in.Phone}, nil
}

func (m *mockUserService) Update(ctx context.Context, id int64, in user.UpdateInput) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, in)
	}
	return &model.User{ID: id}, nil
}

func (m *mockUserService) SetComing(ctx context.Context, id int64, coming bool) error {
	if m.setComingFn != nil {
		return m.setComingFn(ctx, id, coming)
	}
	return nil
}

func (m *mockUserService) Areas(ctx context.Context) ([]string, error) {
	if m.areasFn != nil {
		return m.areasFn(ctx)
	}
	return []string{}, nil
}

// mockGuestbookService はGuestbookServiceInterfaceのモック実装。
type mockGuestbookService struct {
	addWishFn     func(ctx context.Context, name, text string) error
	listWishesFn  func(ctx context.Context) []model.Wish
	addSingleFn   func(ctx context.Context, name, gender, about string) error
	listSinglesFn func(ctx context.Context) *model.SinglesBoard
	addFeedbackFn func(ctx context.Context, name, feedback string) error
}

func (m *mockGuestbookService) AddWish(ctx context.Context, name, text string) error {
	if m.addWishFn != nil {
		return m.addWishFn(ctx, name, text)
	}
	return nil
}

func (m *mockGuestbookService) ListWishes(ctx context.Context) []model.Wish {
	if m.listWishesFn != nil {
		return m.listWishesFn(ctx)
	}
	return []model.Wish{}
}

func (m *mockGuestbookService) AddSingle(ctx context.Context, name, gender, about string) error {
	if m.addSingleFn != nil {
		return m.addSingleFn(ctx, name, gender, about)
	}
	return nil
}

func (m *mockGuestbookService) ListSingles(ctx context.Context) *model.SinglesBoard {
	if m.listSinglesFn != nil {
		return m.listSinglesFn(ctx)
	}
	return &model.SinglesBoard{}
}

func (m *mockGuestbookService) AddFeedback(ctx context.Context, name, feedback string) error {
	if m.addFeedbackFn != nil {
		return m.addFeedbackFn(ctx, name, feedback)
	}
	return nil
}

// --- テストヘルパー ---

func strPtr(s string) *string { return &s }
func int64Ptr(i int64) *int64 { return &i }

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// assertErrorCode はステータスコードとエラーコードを検証するヘルパー。
func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, status, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		t.Errorf("Content-Type = %q, want application/json", w.Header().Get("Content-Type"))
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != code {
		t.Errorf("code = %q, want %q", body["code"], code)
	}
}

// newTestRouter はモックサービスでルーターを構築するヘルパー。
func newTestRouter(seats SeatServiceInterface, users UserServiceInterface, gb GuestbookServiceInterface) *RouterDeps {
	if seats == nil {
		seats = &mockSeatService{}
	}
	if users == nil {
		users = &mockUserService{}
	}
	if gb == nil {
		gb = &mockGuestbookService{}
	}
	return &RouterDeps{
		CORSAllowedOrigin: "*",
		SeatService:       seats,
		UserService:       users,
		GuestbookService:  gb,
	}
}
