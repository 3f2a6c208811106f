package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/planmark/internal/plan"
	pdflib "github.com/ledongthuc/pdf"
)

// Letter size in points, used when a page carries no MediaBox.
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// PageInfo is the geometry and text of one PDF page.
type PageInfo struct {
	Ordinal  int
	Width    float64 // native units
	Height   float64
	UserUnit float64 // points per native unit, 1 unless the page says otherwise
	Text     string
}

// ReadPages reads the size of every page of a PDF, following MediaBox
// inheritance through the page tree.
func ReadPages(r io.Reader) ([]PageInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	n := reader.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("open pdf: no pages")
	}
	pages := make([]PageInfo, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		info := PageInfo{Ordinal: i, Width: defaultPageWidth, Height: defaultPageHeight, UserUnit: 1}
		if box := inherited(page.V, "MediaBox"); box.Len() == 4 {
			w := box.Index(2).Float64() - box.Index(0).Float64()
			h := box.Index(3).Float64() - box.Index(1).Float64()
			if w < 0 {
				w = -w
			}
			if h < 0 {
				h = -h
			}
			if w > 0 && h > 0 {
				info.Width, info.Height = w, h
			}
		}
		if u := page.V.Key("UserUnit").Float64(); u > 0 {
			info.UserUnit = u
		}
		info.Text = pageText(page)
		pages = append(pages, info)
	}
	return pages, nil
}

// inherited looks key up on the page and then its ancestors.
func inherited(v pdflib.Value, key string) pdflib.Value {
	for depth := 0; !v.IsNull() && depth < 32; depth++ {
		if k := v.Key(key); !k.IsNull() {
			return k
		}
		v = v.Key("Parent")
	}
	return pdflib.Value{}
}

func pageText(page pdflib.Page) (text string) {
	if page.V.Key("Contents").IsNull() {
		return ""
	}
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	t, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return t
}

// Scale returns real-world inches per native unit for a page drawn at the
// given drawing scale (real inches per paper inch, 1 for full size).
func (p PageInfo) Scale(drawingScale float64) float64 {
	if drawingScale <= 0 {
		drawingScale = 1
	}
	u := p.UserUnit
	if u <= 0 {
		u = 1
	}
	return u * drawingScale / 72
}

var pageTypeHints = []struct {
	pageType plan.PageType
	words    []string
}{
	{plan.PageFloorPlan, []string{"floor plan", "floorplan", "layout plan"}},
	{plan.PageElevation, []string{"elevation"}},
	{plan.PageCountertop, []string{"countertop", "counter top", "worktop"}},
	{plan.PageCover, []string{"cover sheet", "title sheet", "drawing index", "sheet index"}},
	{plan.PageReference, []string{"detail", "schedule", "specification", "notes"}},
}

// SuggestPageType guesses a page type from title-block text. The operator
// always has the final say; unknown text gives PageOther.
func SuggestPageType(text string) plan.PageType {
	t := strings.ToLower(strings.Join(strings.Fields(text), " "))
	for _, h := range pageTypeHints {
		for _, w := range h.words {
			if strings.Contains(t, w) {
				return h.pageType
			}
		}
	}
	return plan.PageOther
}
