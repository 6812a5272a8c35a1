package bayrol

import "testing"

const siblingDeviceHTML = `<html><body><div id="content">
<div class="i_item item0_0">
  <div class="i_x16">Cl Produktion</div>
</div>
<div class="i_item item3_153">
  <div class="i_x9">Betriebsart</div>
  <select class="i_x7">
    <option value="0">AUS</option>
    <option value="1" selected>Eco</option>
    <option value="2">Normal</option>
  </select>
</div>
</div></body></html>`

func TestParseDeviceStatusSiblingLayout(t *testing.T) {
	status := ParseDeviceStatus(siblingDeviceHTML)

	if len(status) != 1 {
		t.Fatalf("got %d items, want 1: %+v", len(status), status)
	}
	item, ok := status["cl_produktion"]
	if !ok {
		t.Fatalf("sensor cl_produktion missing, have %+v", status)
	}
	if item.Name != "Cl Produktion" {
		t.Errorf("name = %q, want Cl Produktion", item.Name)
	}
	if item.ItemNumber != "item3_153" || item.Topic != "3.153" {
		t.Errorf("addressing = %q/%q, want item3_153/3.153", item.ItemNumber, item.Topic)
	}
	if len(item.Options) != 3 {
		t.Fatalf("got %d options, want 3", len(item.Options))
	}
	if item.CurrentValue == nil || *item.CurrentValue != 1 || item.CurrentText != "Eco" {
		t.Errorf("selection = (%v, %q), want (1, Eco)", item.CurrentValue, item.CurrentText)
	}
}

const interleavedDeviceHTML = `<html><body><div id="content_m">
<div class="i_item item0_1">
  <div class="i_x16">pH (Minus)</div>
</div>
<div class="i_item item4_100">
  <div class="i_x9">Betriebsart</div>
  <select class="i_x7">
    <option value="0">AUS</option>
    <option value="1" selected>Auto</option>
  </select>
</div>
<div class="i_item item0_2">
  <div class="i_x16">Cl Produktion</div>
</div>
<div class="i_item item4_101">
  <div class="i_x9">Betriebsart</div>
  <select class="i_x7">
    <option value="0" selected>AUS</option>
    <option value="1">Auto</option>
  </select>
</div>
</div></body></html>`

func TestParseDeviceStatusInterleavedLayout(t *testing.T) {
	status := ParseDeviceStatus(interleavedDeviceHTML)

	if len(status) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(status), status)
	}

	// Parenthesized device names slug down without the parens.
	ph, ok := status["ph_minus"]
	if !ok {
		t.Fatalf("sensor ph_minus missing, have %+v", status)
	}
	if ph.Name != "pH (Minus)" || ph.Topic != "4.100" || ph.OperationName != "Betriebsart" {
		t.Errorf("ph item = %+v", ph)
	}
	if ph.CurrentText != "Auto" {
		t.Errorf("ph selection = %q, want Auto", ph.CurrentText)
	}

	cl, ok := status["cl_produktion"]
	if !ok {
		t.Fatalf("sensor cl_produktion missing, have %+v", status)
	}
	if cl.Topic != "4.101" || cl.CurrentText != "AUS" {
		t.Errorf("cl item = %+v", cl)
	}
}

const tabbedDeviceHTML = `<html><body>
<div class="tab_row">
  <div class="tab_2">
    <div class="i_item item0_0"><div class="i_x16">Cl Produktion</div></div>
    <div class="i_item item3_153">
      <select class="i_x7"><option value="0" selected>AUS</option><option value="1">Eco</option></select>
    </div>
  </div>
</div>
<div class="tab_row">
  <div class="tab_2">
    <div class="i_item item0_0"><div class="i_x16">Cl Produktion</div></div>
    <div class="i_item item3_153">
      <select class="i_x7"><option value="0">AUS</option><option value="1" selected>Eco</option></select>
    </div>
  </div>
</div>
</body></html>`

func TestParseDeviceStatusTabbedLayout(t *testing.T) {
	status := ParseDeviceStatus(tabbedDeviceHTML)

	if len(status) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(status), status)
	}
	// Tab prefixes keep same-named devices on different tabs distinct.
	first, ok := status["tab_1_cl_produktion"]
	if !ok {
		t.Fatalf("tab_1_cl_produktion missing, have %+v", status)
	}
	second, ok := status["tab_2_cl_produktion"]
	if !ok {
		t.Fatalf("tab_2_cl_produktion missing, have %+v", status)
	}
	if first.CurrentText != "AUS" || second.CurrentText != "Eco" {
		t.Errorf("selections = %q/%q, want AUS/Eco", first.CurrentText, second.CurrentText)
	}
}

func TestParseDeviceStatusDegenerate(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"empty", ""},
		{"no control markup", `<html><body><p>nothing here</p></body></html>`},
		{"device without control sibling", `<div class="i_item item0_0"><div class="i_x16">Cl Produktion</div></div>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status := ParseDeviceStatus(tt.html); len(status) != 0 {
				t.Errorf("got %+v, want none", status)
			}
		})
	}
}

func TestExtractItemSelect(t *testing.T) {
	options, value, text, ok := ExtractItemSelect(siblingDeviceHTML, "item3_153")
	if !ok {
		t.Fatal("select not found")
	}
	if len(options) != 3 {
		t.Errorf("got %d options, want 3", len(options))
	}
	if value == nil || *value != 1 || text != "Eco" {
		t.Errorf("selection = (%v, %q), want (1, Eco)", value, text)
	}

	if _, _, _, ok := ExtractItemSelect(siblingDeviceHTML, "item9_999"); ok {
		t.Error("found a select for an absent item number")
	}
}

func TestItemTopic(t *testing.T) {
	tests := []struct{ in, want string }{
		{"item3_153", "3.153"},
		{"item4_100", "4.100"},
	}
	for _, tt := range tests {
		if got := itemTopic(tt.in); got != tt.want {
			t.Errorf("itemTopic(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
