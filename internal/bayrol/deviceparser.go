package bayrol

import (
	"fmt"
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/razem-io/ha-bayrol-cloud/internal/model"
)

// ParseDeviceStatus parses the device-control page into its settable items.
// The portal serves this page in several structural variants; which parser
// strategy applies is decided per page from the markers actually present:
//
//   - tab_row blocks: one tab per controller, device blocks with a sibling
//     control block, sensor ids prefixed "tab_<n>_" to stay unique.
//   - a content_m container holding a flat i_item list where device-identity
//     blocks and control blocks interleave at the same nesting level.
//   - bare i_x16 device blocks with next-sibling control blocks.
//
// Zero recognized control blocks is not an error by itself; it yields an
// empty result and the poll cycle continues.
func ParseDeviceStatus(html string) model.DeviceStatus {
	data := model.DeviceStatus{}
	if html == "" {
		log.Printf("device parser: empty HTML")
		return data
	}
	doc, ok := parseDocument(html)
	if !ok {
		return data
	}

	tabRows := doc.Find("div.tab_row")
	if tabRows.Length() > 0 {
		tabRows.Each(func(i int, row *goquery.Selection) {
			tab2 := row.Find("div.tab_2").First()
			if tab2.Length() == 0 {
				log.Printf("device parser: tab row %d missing tab_2 div", i+1)
				return
			}
			prefix := fmt.Sprintf("tab_%d_", i+1)
			parseSiblingLayout(tab2.Find("div.i_x16"), data, prefix)
		})
	}

	if contentM := doc.Find("div#content_m").First(); contentM.Length() > 0 {
		if items := contentM.Find("div.i_item"); items.Length() > 0 {
			parseInterleavedLayout(items, data, "")
			if len(data) > 0 {
				return data
			}
		}
	}

	if len(data) == 0 {
		deviceDivs := doc.Find("div.i_x16")
		if deviceDivs.Length() == 0 {
			log.Printf("device parser: no i_x16 device divs found; page shape may have changed "+
				"(i_item=%d tab_info=%d tab_box=%d, %d bytes)",
				doc.Find("div.i_item").Length(),
				doc.Find("div.tab_info").Length(),
				doc.Find("div.tab_box").Length(),
				len(html))
			return data
		}
		parseSiblingLayout(deviceDivs, data, "")
	}

	if len(data) == 0 {
		log.Printf("device parser: parsing resulted in no control items")
	}
	return data
}

// itemClass picks the "item<major>_<minor>" class off a control block.
func itemClass(sel *goquery.Selection) string {
	classAttr, _ := sel.Attr("class")
	for _, c := range strings.Fields(classAttr) {
		if strings.HasPrefix(c, "item") {
			return c
		}
	}
	return ""
}

// itemTopic normalizes "item3_153" to the dotted write address "3.153".
func itemTopic(itemNumber string) string {
	return strings.ReplaceAll(strings.TrimPrefix(itemNumber, "item"), "_", ".")
}

var slugReplacer = strings.NewReplacer(" ", "_", "(", "", ")", "")

// sensorSlug derives a stable sensor id from a device display name.
func sensorSlug(name string) string {
	return slugReplacer.Replace(strings.ToLower(name))
}

// parseSiblingLayout handles the hierarchy where each device-name block's
// enclosing i_item is immediately followed by the i_item holding its control
// select.
func parseSiblingLayout(deviceDivs *goquery.Selection, data model.DeviceStatus, prefix string) {
	deviceDivs.Each(func(_ int, deviceDiv *goquery.Selection) {
		name := strings.TrimSpace(deviceDiv.Text())
		sensorID := prefix + sensorSlug(name)

		parent := deviceDiv.Closest("div.i_item")
		if parent.Length() == 0 {
			return
		}
		modeItem := parent.NextAllFiltered("div.i_item").First()
		if modeItem.Length() == 0 {
			return
		}
		number := itemClass(modeItem)
		if number == "" {
			return
		}
		sel := modeItem.Find("select.i_x7").First()
		if sel.Length() == 0 {
			return
		}
		selHTML, err := goquery.OuterHtml(sel)
		if err != nil {
			log.Printf("device parser: cannot render select for %s: %v", sensorID, err)
			return
		}
		options, value, text := ParseSelectOptions(selHTML)

		data[sensorID] = model.ControlItem{
			SensorID:     sensorID,
			Name:         name,
			ItemNumber:   number,
			Topic:        itemTopic(number),
			Options:      options,
			CurrentValue: value,
			CurrentText:  text,
		}
	})
}

// parseInterleavedLayout handles the flatter page variant where device blocks
// and control blocks sit at the same nesting level. Each control block is
// associated with the nearest earlier device block in document order: one
// forward scan records device positions, then each control block walks that
// index list back for the latest device index below its own.
func parseInterleavedLayout(iItems *goquery.Selection, data model.DeviceStatus, prefix string) {
	var items []*goquery.Selection
	iItems.Each(func(_ int, s *goquery.Selection) { items = append(items, s) })

	type deviceBlock struct {
		index int
		name  string
		slug  string
	}
	var devices []deviceBlock
	isDevice := make(map[int]bool, len(items))

	for i, item := range items {
		if itemClass(item) == "" {
			continue
		}
		deviceDiv := item.Find("div.i_x16").First()
		if deviceDiv.Length() == 0 {
			continue
		}
		name := strings.TrimSpace(deviceDiv.Text())
		devices = append(devices, deviceBlock{index: i, name: name, slug: sensorSlug(name)})
		isDevice[i] = true
	}

	for i, item := range items {
		if isDevice[i] {
			continue
		}
		sel := item.Find("select.i_x7").First()
		if sel.Length() == 0 {
			continue
		}
		operationDiv := item.Find("div.i_x9").First()
		if operationDiv.Length() == 0 {
			continue
		}
		number := itemClass(item)
		if number == "" {
			continue
		}

		var owner *deviceBlock
		for d := len(devices) - 1; d >= 0; d-- {
			if devices[d].index < i {
				owner = &devices[d]
				break
			}
		}
		if owner == nil {
			log.Printf("device parser: no device block precedes control at index %d", i)
			continue
		}

		selHTML, err := goquery.OuterHtml(sel)
		if err != nil {
			log.Printf("device parser: cannot render select for %s: %v", owner.slug, err)
			continue
		}
		options, value, text := ParseSelectOptions(selHTML)

		sensorID := prefix + owner.slug
		data[sensorID] = model.ControlItem{
			SensorID:      sensorID,
			Name:          owner.name,
			OperationName: strings.TrimSpace(operationDiv.Text()),
			ItemNumber:    number,
			Topic:         itemTopic(number),
			Options:       options,
			CurrentValue:  value,
			CurrentText:   text,
		}
	}
}

// ExtractItemSelect pulls the <select> belonging to one control block out of
// a full device page, addressed by its raw item number ("item3_153"). The
// write-verify loop uses it to re-read the selected entry after a setItems
// call.
func ExtractItemSelect(html, itemNumber string) ([]model.SelectOption, *int, string, bool) {
	doc, ok := parseDocument(html)
	if !ok {
		return nil, nil, "", false
	}
	block := doc.Find("div." + itemNumber).First()
	if block.Length() == 0 {
		return nil, nil, "", false
	}
	sel := block.Find("select").First()
	if sel.Length() == 0 {
		return nil, nil, "", false
	}
	selHTML, err := goquery.OuterHtml(sel)
	if err != nil {
		return nil, nil, "", false
	}
	options, value, text := ParseSelectOptions(selHTML)
	return options, value, text, true
}
