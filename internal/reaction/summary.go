package reaction

import (
	"math"

	"github.com/tidwall/gjson"
)

// Counts はリアクション種類ごとの件数。値型なのでコピーがそのままスナップショットになる。
type Counts struct {
	Like    int `json:"like"`
	Love    int `json:"love"`
	Wow     int `json:"wow"`
	Angry   int `json:"angry"`
	Dislike int `json:"dislike"`
}

// Get は種類kの件数を返す。
func (c Counts) Get(k Kind) int {
	if p := c.ptr(k); p != nil {
		return *p
	}
	return 0
}

// Sum は全種類の件数の合計を返す。
func (c Counts) Sum() int {
	return c.Like + c.Love + c.Wow + c.Angry + c.Dislike
}

func (c *Counts) ptr(k Kind) *int {
	switch k {
	case Like:
		return &c.Like
	case Love:
		return &c.Love
	case Wow:
		return &c.Wow
	case Angry:
		return &c.Angry
	case Dislike:
		return &c.Dislike
	}
	return nil
}

// Summary は1つの参照先に対するリアクション集計。
type Summary struct {
	Counts       Counts `json:"counts"`
	Total        int    `json:"total"`
	UserReaction Kind   `json:"userReaction"`
}

// FormatSummary はAPIの集計表現を正規化する。
// 既知の種類以外のキーは無視し、数値でない・非有限・負の件数は0とする。
// totalは有効な非負の数値であればそれを採用し、そうでなければ件数の合計とする。
// userReactionは既知の種類の場合のみ保持する。
func FormatSummary(v gjson.Result) Summary {
	var s Summary
	counts := v.Get("counts")
	for _, info := range Kinds {
		*s.Counts.ptr(info.Value) = count(counts.Get(string(info.Value)))
	}

	s.Total = s.Counts.Sum()
	if t := v.Get("total"); t.Type == gjson.Number && isCount(t.Num) {
		s.Total = int(t.Num)
	}

	if r := v.Get("userReaction"); r.Type == gjson.String {
		if k, ok := ParseKind(r.Str); ok {
			s.UserReaction = k
		}
	}
	return s
}

func count(v gjson.Result) int {
	if v.Type != gjson.Number || !isCount(v.Num) {
		return 0
	}
	return int(v.Num)
}

func isCount(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}

// applyToggle はユーザーがkindをトグルした後の楽観的な集計を返す。
//
// 同じ種類を選び直した場合はその種類と合計を1減らしてリアクションを外す。
// 別の種類を選んだ場合は以前の種類を1減らし（0未満にはしない）、新しい種類を1増やす。
// 合計は以前にリアクションがなかった場合のみ1増やす。
func applyToggle(prev Summary, kind Kind) Summary {
	next := prev

	if prev.UserReaction == kind {
		if p := next.Counts.ptr(kind); *p > 0 {
			*p--
		}
		next.UserReaction = ""
		next.Total = max(0, next.Total-1)
		return next
	}

	hadReaction := prev.UserReaction != ""
	if hadReaction {
		if p := next.Counts.ptr(prev.UserReaction); p != nil && *p > 0 {
			*p--
		}
	}
	*next.Counts.ptr(kind)++
	if !hadReaction {
		next.Total++
	}
	next.UserReaction = kind
	return next
}
