package model

import "fmt"

// SelectOption is one entry of a control item's option set.
type SelectOption struct {
	Value int    `json:"value"`
	Text  string `json:"text"`
}

// ControlItem is one settable operating mode on a controller's device page.
// Topic is the dotted addressing path ("3.153") derived from the control
// block's item class; it is what setItems writes against. SensorID is a slug
// of the device name, prefixed with "tab_<n>_" on multi-controller pages.
type ControlItem struct {
	SensorID      string         `json:"sensor_id"`
	Name          string         `json:"name"`
	OperationName string         `json:"operation_name,omitempty"`
	ItemNumber    string         `json:"item_number"`
	Topic         string         `json:"topic"`
	Options       []SelectOption `json:"options"`
	CurrentValue  *int           `json:"current_value"`
	CurrentText   string         `json:"current_text,omitempty"`
}

// DeviceStatus is the full control-item set of one device page, keyed by
// sensor id. It is rebuilt wholesale on every fetch.
type DeviceStatus map[string]ControlItem

// SetItem is one record of a setItems write. Value is a one-hot vector:
// zeros with a single 1 at the index of the desired option value.
type SetItem struct {
	Topic string `json:"topic"`
	Name  string `json:"name"`
	Value []int  `json:"value"`
	Valid int    `json:"valid"`
	Cmd   int    `json:"cmd"`
}

// OneHot encodes index into a vector of the given length.
func OneHot(length, index int) ([]int, error) {
	if length < 1 {
		return nil, fmt.Errorf("one-hot length %d out of range", length)
	}
	if index < 0 || index >= length {
		return nil, fmt.Errorf("one-hot index %d out of range for length %d", index, length)
	}
	v := make([]int, length)
	v[index] = 1
	return v, nil
}

// OneHotIndex decodes the position of the single 1 in a one-hot vector.
func OneHotIndex(v []int) (int, error) {
	idx := -1
	for i, x := range v {
		switch x {
		case 0:
		case 1:
			if idx >= 0 {
				return 0, fmt.Errorf("one-hot vector has more than one set bit")
			}
			idx = i
		default:
			return 0, fmt.Errorf("one-hot vector contains %d", x)
		}
	}
	if idx < 0 {
		return 0, fmt.Errorf("one-hot vector has no set bit")
	}
	return idx, nil
}
