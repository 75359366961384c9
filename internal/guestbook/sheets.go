// Package guestbook はGoogleスプレッドシートに保存するゲストブック機能を提供する。
// 祝福メッセージ、独身者ボード、フィードバックの3つのシートを扱い、
// 席やユーザーの状態には一切触れない。
package guestbook

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrNotConfigured はスプレッドシートが設定されていないことを示す。
var ErrNotConfigured = errors.New("guestbook spreadsheet is not configured")

// SheetStore は行の追記と全行の読み取りを行う外部ドキュメントストアのインターフェース。
type SheetStore interface {
	// AppendRow はシートの末尾に1行追記する。
	AppendRow(ctx context.Context, sheet string, values []string) error
	// ReadRows はシートの全行を返す。1行目はヘッダー。
	ReadRows(ctx context.Context, sheet string) ([][]string, error)
}

// SheetsClient はGoogle Sheets API v4を使用したSheetStoreの実装。
type SheetsClient struct {
	svc           *sheets.Service
	spreadsheetID string
	logger        *slog.Logger
}

// NewSheetsClient はbase64エンコードされたサービスアカウントJSONで認証するSheetsClientを生成する。
func NewSheetsClient(ctx context.Context, spreadsheetID, credentialsB64 string, logger *slog.Logger) (*SheetsClient, error) {
	if spreadsheetID == "" || credentialsB64 == "" {
		return nil, ErrNotConfigured
	}

	credJSON, err := base64.StdEncoding.DecodeString(strings.TrimSpace(credentialsB64))
	if err != nil {
		return nil, fmt.Errorf("GCP_SA_JSONのデコードに失敗しました: %w", err)
	}

	return newSheetsClient(ctx, spreadsheetID, logger,
		option.WithCredentialsJSON(credJSON),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
}

// newSheetsClient は任意のクライアントオプションでSheetsClientを生成する。テストでエンドポイントを差し替える。
func newSheetsClient(ctx context.Context, spreadsheetID string, logger *slog.Logger, opts ...option.ClientOption) (*SheetsClient, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("Sheetsクライアントの生成に失敗しました: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SheetsClient{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		logger:        logger,
	}, nil
}

// AppendRow はシートの末尾に1行追記する。値は入力どおりの文字列として保存する。
func (c *SheetsClient) AppendRow(ctx context.Context, sheet string, values []string) error {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}

	_, err := c.svc.Spreadsheets.Values.Append(
		c.spreadsheetID,
		a1Range(sheet, "A1"),
		&sheets.ValueRange{Values: [][]interface{}{row}},
	).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		c.logger.Error("シートへの追記に失敗しました",
			slog.String("sheet", sheet),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("シート %s への追記に失敗しました: %w", sheet, err)
	}
	return nil
}

// ReadRows はシートの全行を文字列として返す。
func (c *SheetsClient) ReadRows(ctx context.Context, sheet string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, a1Range(sheet, "")).Context(ctx).Do()
	if err != nil {
		c.logger.Error("シートの読み取りに失敗しました",
			slog.String("sheet", sheet),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("シート %s の読み取りに失敗しました: %w", sheet, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, r := range resp.Values {
		cells := make([]string, len(r))
		for j, v := range r {
			cells[j] = fmt.Sprint(v)
		}
		rows[i] = cells
	}
	return rows, nil
}

// a1Range はシート名をA1記法で引用する。cellが空の場合はシート全体を指す。
func a1Range(sheet, cell string) string {
	quoted := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	if cell == "" {
		return quoted
	}
	return quoted + "!" + cell
}

// compile-time interface check
var _ SheetStore = (*SheetsClient)(nil)
