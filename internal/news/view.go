package news

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hitoshi/pinkmuse/internal/identity"
	"github.com/hitoshi/pinkmuse/internal/locale"
	"github.com/hitoshi/pinkmuse/internal/media"
	"github.com/hitoshi/pinkmuse/internal/security"
)

// wordsPerMinute は読了時間の算出に使う1分あたりの語数。
const wordsPerMinute = 200

var paragraphBreak = regexp.MustCompile(`\n+`)

// Item は一覧表示用に正規化した記事。
type Item struct {
	ID               string          `json:"id"`
	Slug             string          `json:"slug"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	Image            string          `json:"image,omitempty"`
	ImageURL         string          `json:"image_url,omitempty"`
	Date             string          `json:"date,omitempty"`
	RawDate          string          `json:"raw_date,omitempty"`
	Link             string          `json:"link"`
	Author           json.RawMessage `json:"author,omitempty"`
	Category         json.RawMessage `json:"category,omitempty"`
	Tags             json.RawMessage `json:"tags,omitempty"`
	CommentsEnabled  bool            `json:"comments_enabled"`
	ReactionsEnabled bool            `json:"reactions_enabled"`
}

// Detail は記事詳細の表示用ビュー。
type Detail struct {
	Item
	ContentHTML string   `json:"content_html,omitempty"`
	Paragraphs  []string `json:"paragraphs"`
	ReadingTime string   `json:"reading_time,omitempty"`
	Gallery     []string `json:"gallery"`
	// Article は元の記事JSONから未加工のcontenidoを除いたもの。本文はContentHTMLを使う。
	Article json.RawMessage `json:"article"`
}

// Presenter は記事を表示用に整形する。
type Presenter struct {
	images    *media.Resolver
	sanitizer security.ContentSanitizer
	loc       *time.Location
}

// NewPresenter はPresenterの新しいインスタンスを生成する。
// locは日付文字列にタイムゾーンがない場合の解釈と表示に使う。nilの場合はtime.Local。
func NewPresenter(images *media.Resolver, sanitizer security.ContentSanitizer, loc *time.Location) *Presenter {
	if loc == nil {
		loc = time.Local
	}
	return &Presenter{images: images, sanitizer: sanitizer, loc: loc}
}

// Item は記事を一覧用に整形する。タイトルのない記事にはfalseを返す。
func (p *Presenter) Item(a Article) (Item, bool) {
	if a.Title == "" {
		return Item{}, false
	}

	slug := identity.EncodeComponent(a.Title)
	id := a.ID
	if id == "" {
		id = slug
	}

	image := a.field("imagenPrincipal").String()
	if image == "" {
		image = media.ImageValue(a.field("imagenes"))
	}

	description := a.field("resumen").String()
	if description == "" {
		description = a.field("descripcion").String()
	}

	return Item{
		ID:               id,
		Slug:             slug,
		Title:            a.Title,
		Description:      description,
		Image:            image,
		ImageURL:         p.images.URL(image),
		Date:             p.formatDate(a.Date),
		RawDate:          a.Date,
		Link:             "/noticias/" + slug,
		Author:           rawOrNil(a.field("autor")),
		Category:         rawOrNil(a.field("categoria")),
		Tags:             rawOrNil(a.field("etiquetas")),
		CommentsEnabled:  a.CommentsEnabled,
		ReactionsEnabled: a.ReactionsEnabled,
	}, true
}

// List はタイトルのある記事を日付の降順に並べた一覧を返す。日付が無効な記事は末尾に置く。
func (p *Presenter) List(articles []Article) []Item {
	type entry struct {
		item  Item
		at    time.Time
		valid bool
	}
	entries := make([]entry, 0, len(articles))
	for _, a := range articles {
		item, ok := p.Item(a)
		if !ok {
			continue
		}
		at, valid := locale.ParseTime(a.Date, p.loc)
		entries = append(entries, entry{item: item, at: at, valid: valid})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.valid != b.valid {
			return a.valid
		}
		if !a.valid {
			return false
		}
		return a.at.After(b.at)
	})

	out := make([]Item, len(entries))
	for i, e := range entries {
		out[i] = e.item
	}
	return out
}

// Detail は記事を詳細表示用に整形する。
func (p *Presenter) Detail(a Article) (Detail, bool) {
	item, ok := p.Item(a)
	if !ok {
		return Detail{}, false
	}

	description := a.field("descripcion").String()
	d := Detail{
		Item:        item,
		Paragraphs:  splitParagraphs(description),
		ReadingTime: readingTime(description),
		Gallery:     p.gallery(a, a.field("imagenPrincipal").String()),
		Article:     withoutContent(a),
	}
	if content := a.field("contenido").String(); content != "" {
		d.ContentHTML = p.sanitizer.Sanitize(content)
	}
	return d, true
}

func (p *Presenter) formatDate(value string) string {
	if value == "" {
		return ""
	}
	t, ok := locale.ParseTime(value, p.loc)
	if !ok {
		return value
	}
	return locale.FormatLongDate(t.In(p.loc))
}

// gallery は画像一覧から重複とメイン画像を除いたURLを返す。
func (p *Presenter) gallery(a Article, main string) []string {
	out := []string{}
	seen := map[string]bool{}
	a.field("imagenes").ForEach(func(_, v gjson.Result) bool {
		img := media.ImageValue(v)
		if img == "" || img == main || seen[img] {
			return true
		}
		seen[img] = true
		out = append(out, p.images.URL(img))
		return true
	})
	return out
}

func splitParagraphs(text string) []string {
	out := []string{}
	for _, part := range paragraphBreak.Split(text, -1) {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// readingTime は "N min de lectura" を返す。本文が空の場合は空文字列。
func readingTime(text string) string {
	words := len(strings.Fields(text))
	if words == 0 {
		return ""
	}
	minutes := int(math.Max(1, math.Floor(float64(words)/wordsPerMinute+0.5)))
	return fmt.Sprintf("%d min de lectura", minutes)
}

// withoutContent は記事のJSONオブジェクトからcontenidoを取り除いて返す。
func withoutContent(a Article) json.RawMessage {
	raw, err := a.MarshalJSON()
	if err != nil {
		return json.RawMessage("{}")
	}
	obj := gjson.ParseBytes(raw)
	if !obj.IsObject() {
		return json.RawMessage("{}")
	}

	var b bytes.Buffer
	b.WriteByte('{')
	first := true
	obj.ForEach(func(key, value gjson.Result) bool {
		if key.String() == "contenido" {
			return true
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(key.Raw)
		b.WriteByte(':')
		b.WriteString(value.Raw)
		return true
	})
	b.WriteByte('}')
	return json.RawMessage(b.Bytes())
}

func rawOrNil(v gjson.Result) json.RawMessage {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	return json.RawMessage(v.Raw)
}
