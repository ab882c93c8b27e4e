package render

import (
	"errors"
	"regexp"
	"strings"
)

// RefreshValue is the selection value of the button that redraws the
// keyboard without dialing.
const RefreshValue = "refresh"

const refreshLabel = "🔄"

// The extension grid is always GridRows rows of GridColumns buttons.
const (
	GridRows    = 2
	GridColumns = 4
)

// ErrMalformedSelection is returned when a keyboard selection does not carry
// a usable extension or customer number.
var ErrMalformedSelection = errors.New("malformed selection")

// Button is a single inline keyboard button.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Keyboard is an inline keyboard layout. A nil *Keyboard means no keyboard.
type Keyboard struct {
	Rows [][]Button `json:"rows"`
}

// Renderer builds keyboards from a fixed grid of operator extensions.
type Renderer struct {
	grid [][]string
}

// DefaultGrid returns the stock 2x4 extension grid.
func DefaultGrid() [][]string {
	return [][]string{
		{"101", "202", "301", "302"},
		{"401", "402", "501", "502"},
	}
}

// New creates a Renderer. The grid is copied.
func New(grid [][]string) Renderer {
	g := make([][]string, len(grid))
	for i, row := range grid {
		g[i] = append([]string(nil), row...)
	}
	return Renderer{grid: g}
}

// Keyboard renders the extension grid for customer. The extended layout adds
// a refresh row, offered once a call has completed.
func (r Renderer) Keyboard(customer string, extended bool) *Keyboard {
	kb := &Keyboard{Rows: make([][]Button, 0, len(r.grid)+1)}
	for _, row := range r.grid {
		buttons := make([]Button, 0, len(row))
		for _, ext := range row {
			buttons = append(buttons, Button{Text: ext, Data: selectionData(ext, customer)})
		}
		kb.Rows = append(kb.Rows, buttons)
	}
	if extended {
		kb.Rows = append(kb.Rows, []Button{{Text: refreshLabel, Data: selectionData(RefreshValue, customer)}})
	}
	return kb
}

// ButtonCount returns the number of buttons on the keyboard.
func (k *Keyboard) ButtonCount() int {
	if k == nil {
		return 0
	}
	n := 0
	for _, row := range k.Rows {
		n += len(row)
	}
	return n
}

func selectionData(value, customer string) string {
	return value + "," + customer
}

// Selection is a decoded keyboard press.
type Selection struct {
	Extension string
	Customer  string
	Refresh   bool
}

var noticeNumber = regexp.MustCompile(`Missed call from: \+?(\d+)`)

// ParseSelection decodes button data of the form "value,customer". When the
// customer part is missing it is recovered from the notice text.
func ParseSelection(data, messageText string) (Selection, error) {
	value, customer, _ := strings.Cut(strings.TrimSpace(data), ",")
	value = strings.TrimSpace(value)
	customer = NormalizeNumber(customer)

	if customer == "" {
		if m := noticeNumber.FindStringSubmatch(messageText); m != nil {
			customer = m[1]
		}
	}
	if !isDigits(customer) {
		return Selection{}, ErrMalformedSelection
	}

	if value == RefreshValue {
		return Selection{Customer: customer, Refresh: true}, nil
	}
	if !isDigits(value) {
		return Selection{}, ErrMalformedSelection
	}
	return Selection{Extension: value, Customer: customer}, nil
}
