package guestbook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/guestseat/internal/metrics"
	"github.com/hitoshi/guestseat/internal/model"
	"github.com/hitoshi/guestseat/internal/security"
)

// 既定のシート名。既存のスプレッドシートのタブ名に合わせる。
const (
	DefaultWishesSheet   = "ברכות"
	DefaultSinglesSheet  = "רווקים_רווקות"
	DefaultFeedbackSheet = "היכרויות"

	DefaultTimeout  = 10 * time.Second
	DefaultCacheTTL = 60 * time.Second
)

const (
	cacheKeyWishes  = "wishes"
	cacheKeySingles = "singles"
)

// 祝福メッセージシートで受け付けるヘッダー名。先頭が優先。
var (
	wishNameHeaders     = []string{"שם", "name", "Name"}
	wishBlessingHeaders = []string{"ברכה", "text", "blessing"}
)

// 独身者シートのヘッダー名
const (
	singleNameHeader   = "שם"
	singleGenderHeader = "מין"
	singleAboutHeader  = "קצת עליי"
)

// Config はゲストブックの設定。
type Config struct {
	WishesSheet   string
	SinglesSheet  string
	FeedbackSheet string
	Timeout       time.Duration
	CacheTTL      time.Duration
}

func (c Config) withDefaults() Config {
	if c.WishesSheet == "" {
		c.WishesSheet = DefaultWishesSheet
	}
	if c.SinglesSheet == "" {
		c.SinglesSheet = DefaultSinglesSheet
	}
	if c.FeedbackSheet == "" {
		c.FeedbackSheet = DefaultFeedbackSheet
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	return c
}

// Service はゲストブックのビジネスロジックを提供する。
// storeがnilの場合、書き込みはGUESTBOOK_UNAVAILABLE、読み取りは空の結果になる。
type Service struct {
	store     SheetStore
	cache     Cache
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	cfg       Config
}

// NewService はゲストブックサービスを生成する。
func NewService(store SheetStore, cache Cache, sanitizer security.TextSanitizer, collector metrics.MetricsCollector, logger *slog.Logger, cfg Config) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		cache:     cache,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
}

// AddWish は祝福メッセージを [name, text] の行として追記する。
func (s *Service) AddWish(ctx context.Context, name, text string) error {
	name = s.sanitizer.Sanitize(name)
	text = s.sanitizer.Sanitize(text)
	if text == "" {
		return model.NewInvalidRequestError("メッセージを入力してください")
	}
	if err := s.append(ctx, s.cfg.WishesSheet, []string{name, text}); err != nil {
		return err
	}
	s.cache.Delete(ctx, cacheKeyWishes)
	return nil
}

// ListWishes は祝福メッセージを新しい順に返す。名前と本文が両方空の行は除外する。
// シートを読めない場合は空のリストを返す。
func (s *Service) ListWishes(ctx context.Context) []model.Wish {
	var cached []model.Wish
	if s.cachedJSON(ctx, cacheKeyWishes, &cached) {
		return cached
	}

	rows, ok := s.read(ctx, s.cfg.WishesSheet)
	if !ok {
		return []model.Wish{}
	}

	records := toRecords(rows)
	wishes := make([]model.Wish, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		w := model.Wish{
			Name:     rec.first(wishNameHeaders...),
			Blessing: rec.first(wishBlessingHeaders...),
		}
		if w.Name == "" && w.Blessing == "" {
			continue
		}
		wishes = append(wishes, w)
	}

	s.storeJSON(ctx, cacheKeyWishes, wishes)
	return wishes
}

// AddSingle は独身者コーナーに [about, gender, name] の行として追記する。
// genderは GenderMale または GenderFemale のみ受け付ける。
func (s *Service) AddSingle(ctx context.Context, name, gender, about string) error {
	name = s.sanitizer.Sanitize(name)
	about = s.sanitizer.Sanitize(about)
	gender = strings.TrimSpace(gender)
	if name == "" {
		return model.NewInvalidRequestError("名前を入力してください")
	}
	if gender != model.GenderMale && gender != model.GenderFemale {
		return model.NewInvalidRequestError(fmt.Sprintf("性別は %s または %s を指定してください", model.GenderMale, model.GenderFemale))
	}
	if err := s.append(ctx, s.cfg.SinglesSheet, []string{about, gender, name}); err != nil {
		return err
	}
	s.cache.Delete(ctx, cacheKeySingles)
	return nil
}

// ListSingles は独身者コーナーを性別ごとにシート順で返す。
// 性別が不明な行は除外する。シートを読めない場合は空の一覧を返す。
func (s *Service) ListSingles(ctx context.Context) *model.SinglesBoard {
	var cached model.SinglesBoard
	if s.cachedJSON(ctx, cacheKeySingles, &cached) {
		return &cached
	}

	board := &model.SinglesBoard{Men: []model.Single{}, Women: []model.Single{}}
	rows, ok := s.read(ctx, s.cfg.SinglesSheet)
	if !ok {
		return board
	}

	for _, rec := range toRecords(rows) {
		single := model.Single{
			Name:  rec.first(singleNameHeader),
			About: rec.first(singleAboutHeader),
		}
		switch rec.first(singleGenderHeader) {
		case model.GenderMale:
			board.Men = append(board.Men, single)
		case model.GenderFemale:
			board.Women = append(board.Women, single)
		}
	}

	s.storeJSON(ctx, cacheKeySingles, board)
	return board
}

// AddFeedback は匿名メッセージを [name, feedback] の行として追記する。名前は省略できる。
func (s *Service) AddFeedback(ctx context.Context, name, feedback string) error {
	name = s.sanitizer.Sanitize(name)
	feedback = s.sanitizer.Sanitize(feedback)
	if feedback == "" {
		return model.NewInvalidRequestError("メッセージを入力してください")
	}
	return s.append(ctx, s.cfg.FeedbackSheet, []string{name, feedback})
}

func (s *Service) append(ctx context.Context, sheet string, values []string) error {
	if s.store == nil {
		s.metrics.RecordGuestbookWrite(sheet, false)
		return model.NewGuestbookUnavailableError()
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.store.AppendRow(ctx, sheet, values); err != nil {
		s.metrics.RecordGuestbookWrite(sheet, false)
		s.logger.Warn("ゲストブックへの書き込みに失敗しました",
			slog.String("sheet", sheet),
			slog.String("error", err.Error()),
		)
		return model.NewGuestbookUnavailableError()
	}
	s.metrics.RecordGuestbookWrite(sheet, true)
	return nil
}

func (s *Service) read(ctx context.Context, sheet string) ([][]string, bool) {
	if s.store == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	rows, err := s.store.ReadRows(ctx, sheet)
	if err != nil {
		s.logger.Warn("ゲストブックの読み取りに失敗しました",
			slog.String("sheet", sheet),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return rows, true
}

func (s *Service) cachedJSON(ctx context.Context, key string, dst interface{}) bool {
	bs, ok := s.cache.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(bs, dst) == nil
}

func (s *Service) storeJSON(ctx context.Context, key string, v interface{}) {
	bs, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, bs, s.cfg.CacheTTL)
}

// record はヘッダー名をキーとする1行分の値。
type record map[string]string

// first は候補ヘッダーのうち最初に存在するものの値を返す。
func (r record) first(headers ...string) string {
	for _, h := range headers {
		if v, ok := r[h]; ok {
			return v
		}
	}
	return ""
}

// toRecords は1行目をヘッダーとして残りの行をレコードに変換する。
// 空のヘッダー列と、全セルが空の行は無視する。
func toRecords(rows [][]string) []record {
	if len(rows) < 2 {
		return nil
	}
	header := rows[0]
	records := make([]record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(record, len(header))
		blank := true
		for i, h := range header {
			h = strings.TrimSpace(h)
			if h == "" {
				continue
			}
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			if _, dup := rec[h]; dup {
				continue
			}
			rec[h] = v
			if v != "" {
				blank = false
			}
		}
		if !blank {
			records = append(records, rec)
		}
	}
	return records
}
