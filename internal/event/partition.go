package event

import (
	"sort"
	"time"

	"github.com/hitoshi/pinkmuse/internal/locale"
)

// Partition は日付で分割したイベント一覧。
type Partition struct {
	Upcoming []Event `json:"upcoming"`
	Past     []Event `json:"past"`
}

// PartitionByDate はイベントを「今後」と「過去」に分割する。
//
// nowと同じロケーションでの当日0時より前の有効な日付を持つイベントが過去、
// それ以外（日付なし・解釈不能・当日以降）が今後となる。
// 今後は日付の昇順、過去は降順に並べ、いずれも日付が無効なものは末尾に置く。
func PartitionByDate(events []Event, now time.Time) Partition {
	today := locale.StartOfDay(now)
	loc := now.Location()

	upcoming := make([]dated, 0, len(events))
	past := make([]dated, 0, len(events))
	for _, ev := range events {
		t, ok := locale.ParseTime(ev.Date, loc)
		d := dated{event: ev, at: t, valid: ok}
		if ok && t.Before(today) {
			past = append(past, d)
		} else {
			upcoming = append(upcoming, d)
		}
	}

	sortDated(upcoming, false)
	sortDated(past, true)

	return Partition{
		Upcoming: unwrap(upcoming),
		Past:     unwrap(past),
	}
}

type dated struct {
	event Event
	at    time.Time
	valid bool
}

func sortDated(items []dated, desc bool) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.valid != b.valid {
			return a.valid
		}
		if !a.valid {
			return false
		}
		if desc {
			return a.at.After(b.at)
		}
		return a.at.Before(b.at)
	})
}

func unwrap(items []dated) []Event {
	out := make([]Event, len(items))
	for i, d := range items {
		out[i] = d.event
	}
	return out
}
