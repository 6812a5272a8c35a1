package bayrol

import (
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/razem-io/ha-bayrol-cloud/internal/model"
)

// The portal renders everything server-side; these parsers turn its page
// shapes into typed records. They never fail hard: a shape mismatch is logged
// with enough context to diagnose a redesign and yields an empty result.

const offlineMarker = "No connection to the controller"

var (
	lastSeenRe      = regexp.MustCompile(`since (\d{2}\.\d{2}\.\d{2}, \d{2}:\d{2}) UTC`)
	cidParamRe      = regexp.MustCompile(`c=(\d+)`)
	tabDataRe       = regexp.MustCompile(`tab_data(\d+)`)
	plantSettingsRe = regexp.MustCompile(`plant_settings\.php\?c=\d+`)
)

// measurementMap maps the portal's vendor-language box labels to canonical
// measurement kinds.
var measurementMap = map[string]model.Kind{
	"pH":    model.KindPH,
	"Redox": model.KindRedox,
	"mV":    model.KindRedox,
	"Temp.": model.KindTemperature,
	"T":     model.KindTemperature,
	"T1":    model.KindTemperature,
	"Cl":    model.KindChlorine,
	"Salz":  model.KindSalt,
}

func parseDocument(html string) (*goquery.Document, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Printf("parser: unreadable HTML (%d bytes): %v", len(html), err)
		return nil, false
	}
	return doc, true
}

// ParseLoginForm extracts every <input> name/value pair from the portal's
// login form. An absent form yields an empty map; the caller treats that as a
// login failure.
func ParseLoginForm(html string) map[string]string {
	form := map[string]string{}
	doc, ok := parseDocument(html)
	if !ok {
		return form
	}
	sel := doc.Find("form#form_login")
	if sel.Length() == 0 {
		log.Printf("parser: login form not found (%d bytes of HTML)", len(html))
		return form
	}
	sel.Find("input").Each(func(_ int, in *goquery.Selection) {
		name, ok := in.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := in.Attr("value")
		form[name] = value
	})
	return form
}

// CheckLoginError reports whether a login POST response carries one of the
// portal's error markers. The portal answers HTTP 200 either way, so this is
// the only success signal.
func CheckLoginError(html string) bool {
	if !strings.Contains(html, "Fehler") && !strings.Contains(html, "Zeit abgelaufen") {
		return false
	}
	if doc, ok := parseDocument(html); ok {
		if errText := strings.TrimSpace(doc.Find("div.error_text").First().Text()); errText != "" {
			log.Printf("login error: %s", errText)
			return true
		}
	}
	log.Printf("login error: generic error marker present, no error_text div")
	return true
}

// ParseControllers extracts the account's controllers from the plants page.
// Two layouts exist: the tab-row layout with per-controller info/data blocks,
// and an older flat list of clickable divs. Unparseable rows are skipped.
func ParseControllers(html string) []model.Controller {
	doc, ok := parseDocument(html)
	if !ok {
		return nil
	}

	var controllers []model.Controller

	tabRows := doc.Find("div.tab_row")
	if tabRows.Length() == 0 {
		return parseControllersFlat(doc)
	}

	tabRows.Each(func(_ int, row *goquery.Selection) {
		tab1 := row.Find("div.tab_1").First()
		tab2 := row.Find("div.tab_2").First()
		if tab1.Length() == 0 || tab2.Length() == 0 {
			log.Printf("parser: tab_row missing tab_1 or tab_2, skipping")
			return
		}

		cid := cidFromTabData(tab2)
		if cid == "" {
			cid = cidFromOnclick(tab1)
		}
		if cid == "" {
			log.Printf("parser: no controller id in tab_row, skipping")
			return
		}

		name := strings.TrimSpace(tab1.Find("p").First().Text())
		if name == "" {
			spans := tab2.Find("div.tab_info span")
			if spans.Length() >= 2 {
				name = strings.TrimSpace(spans.Eq(1).Text())
			}
		}
		if name == "" {
			name = "Pool Controller"
		}

		controllers = append(controllers, model.Controller{CID: cid, Name: name})
	})

	if len(controllers) == 0 {
		log.Printf("parser: no controllers found in plants page (%d tab rows)", tabRows.Length())
	}
	return controllers
}

// parseControllersFlat handles the older plants layout: clickable divs with a
// plant_settings navigation handler, named by the nearest following tab_info
// block. A single forward scan over all divs in document order pairs each
// clickable div with the first tab_info block after it.
func parseControllersFlat(doc *goquery.Document) []model.Controller {
	var controllers []model.Controller
	var unnamed []int

	doc.Find("div").Each(func(_ int, div *goquery.Selection) {
		if onclick, ok := div.Attr("onclick"); ok && plantSettingsRe.MatchString(onclick) {
			if m := cidParamRe.FindStringSubmatch(onclick); m != nil {
				controllers = append(controllers, model.Controller{CID: m[1], Name: "Pool Controller"})
				unnamed = append(unnamed, len(controllers)-1)
			}
			return
		}
		if div.HasClass("tab_info") && len(unnamed) > 0 {
			spans := div.Find("span")
			if spans.Length() >= 2 {
				if name := strings.TrimSpace(spans.Eq(1).Text()); name != "" {
					for _, i := range unnamed {
						controllers[i].Name = name
					}
				}
			}
			unnamed = unnamed[:0]
		}
	})

	if len(controllers) == 0 {
		log.Printf("parser: no controllers found in plants page")
	}
	return controllers
}

func cidFromTabData(tab2 *goquery.Selection) string {
	if id, ok := tab2.Attr("id"); ok {
		if m := tabDataRe.FindStringSubmatch(id); m != nil {
			return m[1]
		}
	}
	return ""
}

func cidFromOnclick(sel *goquery.Selection) string {
	cid := ""
	sel.Find("div[onclick]").EachWithBreak(func(_ int, div *goquery.Selection) bool {
		onclick, _ := div.Attr("onclick")
		if !plantSettingsRe.MatchString(onclick) {
			return true
		}
		if m := cidParamRe.FindStringSubmatch(onclick); m != nil {
			cid = m[1]
			return false
		}
		return true
	})
	return cid
}

// CheckDeviceOffline detects the portal's "no connection" error block and
// extracts the last-seen timestamp and device serial. It returns nil when the
// page carries no offline marker. Offline detection runs before measurement
// extraction: an offline page has no measurement boxes worth trusting.
func CheckDeviceOffline(html string) *model.PoolData {
	doc, ok := parseDocument(html)
	if !ok {
		return nil
	}
	errDiv := doc.Find("div.tab_error").First()
	if errDiv.Length() == 0 || !strings.Contains(errDiv.Text(), offlineMarker) {
		return nil
	}

	data := &model.PoolData{Status: model.StatusOffline}
	if m := lastSeenRe.FindStringSubmatch(errDiv.Text()); m != nil {
		data.LastSeen = m[1]
	}
	if span := doc.Find("div.tab_info span").First(); span.Length() > 0 {
		data.DeviceID = strings.TrimSpace(span.Text())
	}
	log.Printf("device offline: id=%q last_seen=%q", data.DeviceID, data.LastSeen)
	return data
}

// CheckDeviceCompatibility reports whether a device model string is on the
// known-compatible allowlist.
func CheckDeviceCompatibility(deviceModel string) bool {
	for _, m := range compatibleDeviceModels {
		if deviceModel == m {
			return true
		}
	}
	return false
}

// measurementLabel reduces a box label like "pH [pH]" to its bare name.
func measurementLabel(text string) string {
	if i := strings.IndexByte(text, '['); i >= 0 {
		text = text[:i]
	}
	text = strings.ReplaceAll(text, "\u00a0", " ")
	return strings.TrimSpace(text)
}

// parseMeasurementBox reads one tab_box into data. Unknown labels and
// non-numeric values are logged and skipped without affecting sibling boxes.
func parseMeasurementBox(box *goquery.Selection, data *model.PoolData) {
	span := box.Find("span").First()
	h1 := box.Find("h1").First()
	if span.Length() == 0 || h1.Length() == 0 {
		return
	}
	label := measurementLabel(span.Text())
	kind, known := measurementMap[label]
	if !known {
		if label != "" {
			log.Printf("parser: unknown measurement label %q", label)
		}
		return
	}
	raw := strings.TrimSpace(h1.Text())
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("parser: value %q for measurement %q is not numeric", raw, kind)
		return
	}
	alarm := box.HasClass("stat_warning") || box.HasClass("stat_alarm")
	data.Set(kind, value, alarm)
}

// ParsePoolData parses the direct getdata response for one controller. An
// offline page yields the offline sentinel; a page with no parseable boxes
// yields the zero PoolData, which callers read as "fetch failed".
func ParsePoolData(html string) model.PoolData {
	if offline := CheckDeviceOffline(html); offline != nil {
		return *offline
	}

	doc, ok := parseDocument(html)
	if !ok {
		return model.PoolData{}
	}

	var data model.PoolData
	boxes := doc.Find("div.tab_box")
	if boxes.Length() == 0 {
		log.Printf("parser: no tab_box divs in getdata response (%d bytes)", len(html))
		return data
	}
	boxes.Each(func(_ int, box *goquery.Selection) {
		parseMeasurementBox(box, &data)
	})

	if len(data.Measurements) == 0 {
		log.Printf("parser: no valid measurements in getdata response")
		return model.PoolData{}
	}
	data.Status = model.StatusOnline
	return data
}

// ParseOverviewPage parses the multi-controller overview, the fallback data
// source when the direct endpoint misbehaves. Each tab row yields one entry
// keyed by controller id: either a measurement snapshot with device
// serial/model/firmware, or an offline sentinel for unreachable rows.
func ParseOverviewPage(html string) map[string]model.PoolData {
	results := map[string]model.PoolData{}
	doc, ok := parseDocument(html)
	if !ok {
		return results
	}

	tabRows := doc.Find("div.tab_row")
	if tabRows.Length() == 0 {
		log.Printf("parser: no tab_row divs in overview page (%d bytes)", len(html))
		return results
	}

	tabRows.Each(func(_ int, row *goquery.Selection) {
		tab1 := row.Find("div.tab_1").First()
		tab2 := row.Find("div.tab_2").First()
		if tab1.Length() == 0 || tab2.Length() == 0 {
			log.Printf("parser: overview tab_row missing tab_1 or tab_2, skipping")
			return
		}

		cid := cidFromOnclick(tab1)
		if cid == "" {
			cid = cidFromTabData(tab2)
		}
		if cid == "" {
			log.Printf("parser: no controller id in overview tab_row, skipping")
			return
		}

		name := strings.TrimSpace(tab1.Find("p").First().Text())
		if name == "" {
			name = "Pool Controller"
		}

		// Offline rows carry the error block instead of measurement boxes.
		errDiv := tab2.Find("div.tab_error").First()
		if errDiv.Length() > 0 && strings.Contains(errDiv.Text(), offlineMarker) {
			data := model.PoolData{Status: model.StatusOffline, Name: name}
			if m := lastSeenRe.FindStringSubmatch(errDiv.Text()); m != nil {
				data.LastSeen = m[1]
			}
			if span := tab2.Find("div.tab_info span").First(); span.Length() > 0 {
				data.DeviceID = strings.TrimSpace(span.Text())
			}
			log.Printf("parser: controller %s offline since %q", cid, data.LastSeen)
			results[cid] = data
			return
		}

		var data model.PoolData
		spans := tab2.Find("div.tab_info span")
		if spans.Length() >= 2 {
			data.DeviceID = strings.TrimSpace(spans.Eq(0).Text())
			data.DeviceModel = strings.TrimSpace(spans.Eq(1).Text())
			if spans.Length() > 2 {
				data.DeviceVersion = strings.TrimSpace(spans.Eq(2).Text())
			}
			if data.DeviceModel != "" && !CheckDeviceCompatibility(data.DeviceModel) {
				log.Printf("device model %q is not on the compatibility list but was parsed; please open an issue at %s",
					data.DeviceModel, issuesURL)
			}
		}

		tab2.Find("div.tab_box").Each(func(_ int, box *goquery.Selection) {
			parseMeasurementBox(box, &data)
		})

		if len(data.Measurements) == 0 {
			return
		}
		data.Status = model.StatusOnline
		data.Name = name
		results[cid] = data
	})

	if len(results) == 0 {
		log.Printf("parser: no controller data found in overview page")
	}
	return results
}
