package audit

import (
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/climatewatch/auditview/internal/shared"
)

// Status is the top-level state of a rendered table.
type Status string

const (
	StatusLoading Status = "loading"
	StatusError   Status = "error"
	StatusEmpty   Status = "empty"
	StatusReady   Status = "ready"
)

const (
	msgLoading = "Loading audit events..."
	msgError   = "Error loading audit events: "
	msgEmpty   = "No audit events found."
)

// Column describes one table column.
type Column struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// Columns are the table columns in display order.
var Columns = []Column{
	{Key: "receivedAt", Title: "Received At"},
	{Key: "channel", Title: "Channel"},
	{Key: "module", Title: "Module"},
	{Key: "temperature", Title: "Temp"},
	{Key: "humidity", Title: "Humidity"},
	{Key: "pressure", Title: "Pressure"},
}

// Row is one rendered audit item. Missing values render as "-".
type Row struct {
	ID          string `json:"id"`
	ReceivedAt  string `json:"receivedAt"`
	Channel     string `json:"channel"`
	Module      string `json:"module"`
	Temperature string `json:"temperature"`
	Humidity    string `json:"humidity"`
	Pressure    string `json:"pressure"`
	Expanded    bool   `json:"expanded"`
	Detail      string `json:"detail,omitempty"`
}

// PageButton is one navigable page in the pagination window.
type PageButton struct {
	Index   int    `json:"index"`
	Label   string `json:"label"`
	Current bool   `json:"current"`
}

// TableView is everything a renderer needs to draw the table.
type TableView struct {
	Status        Status       `json:"status"`
	Message       string       `json:"message,omitempty"`
	Columns       []Column     `json:"columns"`
	Rows          []Row        `json:"rows"`
	Buttons       []PageButton `json:"buttons"`
	Page          int          `json:"page"`
	Size          int          `json:"size"`
	PageSizes     []int        `json:"pageSizes"`
	TotalPages    int          `json:"totalPages"`
	TotalElements int64        `json:"totalElements"`
	Summary       string       `json:"summary,omitempty"`
	CanPrev       bool         `json:"canPrev"`
	CanNext       bool         `json:"canNext"`
}

var printer = message.NewPrinter(language.English)

// Table derives the rendered structure from the current state.
func (vm *TableViewModel) Table() TableView {
	vm.mu.Lock()
	state := vm.snapshotLocked()
	vm.mu.Unlock()
	return BuildTable(state)
}

// BuildTable derives the rendered structure from a state snapshot.
func BuildTable(state ViewState) TableView {
	view := TableView{
		Columns:   Columns,
		Rows:      []Row{},
		Buttons:   []PageButton{},
		Page:      state.Page,
		Size:      state.Size,
		PageSizes: PageSizes,
		CanPrev:   state.Page > 0,
	}
	if state.Data != nil {
		pager := shared.NewPagination(state.Page, state.Size, state.Data.TotalPages, state.Data.TotalElements)
		view.TotalPages = pager.TotalPages
		view.TotalElements = pager.Total
		view.CanNext = !state.Loading && pager.HasNext()
		for _, idx := range pager.Window() {
			view.Buttons = append(view.Buttons, PageButton{
				Index:   idx,
				Label:   strconv.Itoa(idx + 1),
				Current: idx == pager.Page,
			})
		}
	}

	switch {
	case state.Loading:
		view.Status = StatusLoading
		view.Message = msgLoading
		return view
	case state.Err != "":
		view.Status = StatusError
		view.Message = msgError + state.Err
		return view
	case state.Data == nil || len(state.Data.Items) == 0:
		view.Status = StatusEmpty
		view.Message = msgEmpty
		return view
	}

	view.Status = StatusReady
	view.Summary = printer.Sprintf("Showing page %d of %d (%d total events)", state.Page+1, state.Data.TotalPages, state.Data.TotalElements)
	view.Rows = make([]Row, 0, len(state.Data.Items))
	for _, item := range state.Data.Items {
		key := item.ID.String()
		row := Row{
			ID:          key,
			ReceivedAt:  orDash(item.ReceivedAt),
			Channel:     orDash(item.Channel),
			Module:      orDash(item.Module),
			Temperature: item.Temperature.String(),
			Humidity:    item.Humidity.String(),
			Pressure:    item.Pressure.String(),
			Expanded:    state.Expanded[key],
		}
		if row.Expanded {
			row.Detail = item.Detail()
		}
		view.Rows = append(view.Rows, row)
	}
	return view
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
