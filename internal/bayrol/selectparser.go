package bayrol

import (
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/razem-io/ha-bayrol-cloud/internal/model"
)

// ParseSelectOptions decodes the raw HTML of one <select> element into its
// option set, sorted ascending by value, plus the currently selected entry
// (nil/"" when none carries the selected attribute). The selected marker is
// recognized in either attribute order. An option with a malformed numeric
// value is skipped; it does not fail the surrounding options.
func ParseSelectOptions(html string) ([]model.SelectOption, *int, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Printf("select parse: unreadable fragment (%d bytes): %v", len(html), err)
		return nil, nil, ""
	}

	var (
		options      []model.SelectOption
		selectedVal  *int
		selectedText string
	)

	doc.Find("option").Each(func(_ int, opt *goquery.Selection) {
		raw, ok := opt.Attr("value")
		if !ok {
			return
		}
		value, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || value < 0 {
			log.Printf("select parse: skipping option with malformed value %q", raw)
			return
		}

		text := opt.Text()
		// Labels occasionally embed a tab before trailing markup; keep only
		// what precedes it.
		if i := strings.IndexByte(text, '\t'); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)

		options = append(options, model.SelectOption{Value: value, Text: text})

		if _, sel := opt.Attr("selected"); sel {
			v := value
			selectedVal = &v
			selectedText = text
		}
	})

	sort.SliceStable(options, func(i, j int) bool { return options[i].Value < options[j].Value })
	return options, selectedVal, selectedText
}
