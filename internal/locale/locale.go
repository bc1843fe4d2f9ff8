// Package locale はスペイン語（es）での日付表示と、APIが返す揺れのある日付文字列の解釈を提供する。
package locale

import (
	"fmt"
	"math"
	"strings"
	"time"
)

var monthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// zoned はタイムゾーン情報を含むレイアウト。
var zoned = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	time.RFC1123Z,
	time.RFC1123,
}

// naive はタイムゾーン情報を含まないレイアウト。locの時刻として解釈する。
var naive = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// ParseTime はAPIの日付文字列を解釈する。
// タイムゾーンを含まない値はlocの時刻として扱う。空文字列や解釈できない値はfalseを返す。
func ParseTime(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range zoned {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	for _, layout := range naive {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// StartOfDay はtと同じロケーションでの当日0時を返す。
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FormatLongDate は "2 de enero de 2006" 形式で日付を整形する。
func FormatLongDate(t time.Time) string {
	return fmt.Sprintf("%d de %s de %d", t.Day(), monthNames[t.Month()-1], t.Year())
}

// FormatDateTime は "2 de enero de 2006, 15:04" 形式で日時を整形する。
func FormatDateTime(t time.Time) string {
	return fmt.Sprintf("%s, %02d:%02d", FormatLongDate(t), t.Hour(), t.Minute())
}

type unit int

const (
	unitSecond unit = iota
	unitMinute
	unitHour
	unitDay
	unitWeek
	unitMonth
	unitYear
)

type threshold struct {
	limit   float64
	divisor float64
	unit    unit
}

// thresholds は単位の切り替え境界（秒）。月は30.4375日、年は365.25日で換算する。
var thresholds = []threshold{
	{60, 1, unitSecond},
	{3600, 60, unitMinute},
	{86400, 3600, unitHour},
	{604800, 86400, unitDay},
	{2629800, 604800, unitWeek},
	{31557600, 2629800, unitMonth},
	{math.Inf(1), 31557600, unitYear},
}

// FormatRelative はnowから見たtの相対時刻を "hace 5 minutos" や "ayer" のように返す。
func FormatRelative(t, now time.Time) string {
	diff := roundHalfUp(t.Sub(now).Seconds())
	abs := math.Abs(diff)
	for _, th := range thresholds {
		if abs < th.limit {
			return relativePhrase(int64(roundHalfUp(diff/th.divisor)), th.unit)
		}
	}
	return FormatDateTime(t)
}

// roundHalfUp は0.5を正の無限大方向へ丸める。
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

type unitWords struct {
	singular string
	plural   string
	// 直近の値に対応する特別な表現。キーは相対値。
	special map[int64]string
}

var words = map[unit]unitWords{
	unitSecond: {"segundo", "segundos", map[int64]string{0: "ahora"}},
	unitMinute: {"minuto", "minutos", map[int64]string{0: "este minuto"}},
	unitHour:   {"hora", "horas", map[int64]string{0: "esta hora"}},
	unitDay: {"día", "días", map[int64]string{
		-2: "anteayer", -1: "ayer", 0: "hoy", 1: "mañana", 2: "pasado mañana",
	}},
	unitWeek: {"semana", "semanas", map[int64]string{
		-1: "la semana pasada", 0: "esta semana", 1: "la próxima semana",
	}},
	unitMonth: {"mes", "meses", map[int64]string{
		-1: "el mes pasado", 0: "este mes", 1: "el próximo mes",
	}},
	unitYear: {"año", "años", map[int64]string{
		-1: "el año pasado", 0: "este año", 1: "el próximo año",
	}},
}

func relativePhrase(n int64, u unit) string {
	w := words[u]
	if s, ok := w.special[n]; ok {
		return s
	}
	abs := n
	if abs < 0 {
		abs = -abs
	}
	noun := w.plural
	if abs == 1 {
		noun = w.singular
	}
	if n < 0 {
		return fmt.Sprintf("hace %d %s", abs, noun)
	}
	return fmt.Sprintf("dentro de %d %s", abs, noun)
}
