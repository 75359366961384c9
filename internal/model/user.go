// Package model はドメインモデルを定義する。
package model

// DefaultUserType は電話番号ログインで自動登録されたユーザーの区分。
const DefaultUserType = "אורח לא רשום"

// User は招待客（またはスタッフ）を表す。
// 電話番号が業務上の一意キーで、Phone2は連絡先検索用の予備番号。
type User struct {
	ID             int64
	Name           string
	Phone          string
	Phone2         *string
	UserType       string
	ReserveCount   int
	NumGuests      int
	IsComing       *Attendance
	Area           *string
	Vegan          int
	Kids           int
	Meat           int
	GlutenFree     int
	TransportFrom  *string
	TransportSeats int
}

// Attendance は出欠回答を表す。NULLは未回答。
// 既存データとの互換性のため、値は運用開始時の文字列をそのまま保持する。
type Attendance string

const (
	// AttendanceYes は出席。
	AttendanceYes Attendance = "כן"
	// AttendanceNo は欠席。
	AttendanceNo Attendance = "לא"
)

// AttendanceFromBool はbool値をAttendanceに変換する。
func AttendanceFromBool(coming bool) Attendance {
	if coming {
		return AttendanceYes
	}
	return AttendanceNo
}

// UserPatch はユーザーの部分更新内容を表す。
// nilのフィールドは変更しない。
type UserPatch struct {
	Name           *string
	Phone          *string
	Phone2         *string
	UserType       *string
	ReserveCount   *int
	NumGuests      *int
	IsComing       *Attendance
	Area           *string
	Vegan          *int
	Kids           *int
	Meat           *int
	GlutenFree     *int
	TransportFrom  *string
	TransportSeats *int
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (p *UserPatch) IsEmpty() bool {
	return p.Name == nil && p.Phone == nil && p.Phone2 == nil && p.UserType == nil &&
		p.ReserveCount == nil && p.NumGuests == nil && p.IsComing == nil && p.Area == nil &&
		p.Vegan == nil && p.Kids == nil && p.Meat == nil && p.GlutenFree == nil &&
		p.TransportFrom == nil && p.TransportSeats == nil
}
