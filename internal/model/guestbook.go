package model

// Wish はゲストから新郎新婦へのお祝いメッセージ。
type Wish struct {
	Name     string
	Blessing string
}

// Single は独身者コーナーの自己紹介エントリ。
type Single struct {
	Name  string
	About string
}

// SinglesBoard は性別ごとに分けた独身者コーナーの一覧。
type SinglesBoard struct {
	Men   []Single
	Women []Single
}

// 独身者コーナーの性別値。シートの既存データに合わせる。
const (
	GenderMale   = "זכר"
	GenderFemale = "נקבה"
)
