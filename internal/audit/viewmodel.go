package audit

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/climatewatch/auditview/internal/shared"
)

// DefaultPageSize is the page size of a fresh view.
const DefaultPageSize = 20

// PageSizes lists the selectable page sizes.
var PageSizes = []int{10, 20, 50, 100}

// ValidPageSize reports whether size is one of PageSizes.
func ValidPageSize(size int) bool {
	for _, s := range PageSizes {
		if s == size {
			return true
		}
	}
	return false
}

// ViewState is the state behind one audit table.
type ViewState struct {
	Page     int
	Size     int
	Data     *Page
	Loading  bool
	Err      string
	Expanded map[string]bool
}

// TableViewModel owns pagination and expansion state for one table and
// loads pages through a Fetcher. When loads overlap, only the most recently
// started one is applied; older ones are cancelled and discarded.
type TableViewModel struct {
	fetcher Fetcher
	metrics *Metrics

	mu     sync.Mutex
	state  ViewState
	seq    uint64
	cancel context.CancelFunc
	loaded bool
}

// NewTableViewModel returns a view on page 0 with the default page size.
func NewTableViewModel(fetcher Fetcher, metrics *Metrics) *TableViewModel {
	return &TableViewModel{
		fetcher: fetcher,
		metrics: metrics,
		state: ViewState{
			Page:     0,
			Size:     DefaultPageSize,
			Expanded: make(map[string]bool),
		},
	}
}

// Restore reapplies a previously saved page, size and expanded ids without
// loading. An unknown size falls back to the default.
func (vm *TableViewModel) Restore(page, size int, expanded []string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if page < 0 {
		page = 0
	}
	if !ValidPageSize(size) {
		size = DefaultPageSize
	}
	vm.state.Page = page
	vm.state.Size = size
	vm.state.Expanded = make(map[string]bool, len(expanded))
	for _, id := range expanded {
		if id != "" {
			vm.state.Expanded[id] = true
		}
	}
}

// SetPage clamps p to the known page range and loads it.
func (vm *TableViewModel) SetPage(ctx context.Context, p int) error {
	vm.mu.Lock()
	vm.state.Page = shared.ClampPage(p, vm.totalPagesLocked())
	vm.mu.Unlock()
	return vm.Load(ctx)
}

// NextPage moves one page forward.
func (vm *TableViewModel) NextPage(ctx context.Context) error {
	return vm.SetPage(ctx, vm.currentPage()+1)
}

// PrevPage moves one page back.
func (vm *TableViewModel) PrevPage(ctx context.Context) error {
	return vm.SetPage(ctx, vm.currentPage()-1)
}

// SetPageSize changes the page size, resets to the first page and loads it.
func (vm *TableViewModel) SetPageSize(ctx context.Context, size int) error {
	if !ValidPageSize(size) {
		return ErrInvalidPageSize
	}
	vm.mu.Lock()
	vm.state.Size = size
	vm.state.Page = 0
	vm.mu.Unlock()
	return vm.Load(ctx)
}

// Refresh reloads the current page.
func (vm *TableViewModel) Refresh(ctx context.Context) error {
	return vm.Load(ctx)
}

// Load fetches the current page and replaces the page data wholesale. A
// load that is overtaken by a newer one returns ErrSuperseded and leaves the
// state untouched.
func (vm *TableViewModel) Load(ctx context.Context) error {
	vm.mu.Lock()
	if vm.cancel != nil {
		vm.cancel()
	}
	vm.seq++
	seq := vm.seq
	ctx, cancel := context.WithCancel(ctx)
	vm.cancel = cancel
	page, size := vm.state.Page, vm.state.Size
	vm.state.Loading = true
	vm.state.Err = ""
	vm.mu.Unlock()

	result, err := vm.fetcher.Fetch(ctx, page, size)
	if err == nil && result == nil {
		err = &ParseError{Err: errors.New("empty response")}
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	cancel()
	if seq != vm.seq {
		vm.metrics.supersededLoad()
		return ErrSuperseded
	}
	vm.cancel = nil
	vm.state.Loading = false
	switch {
	case err == nil:
		vm.state.Data = result
		vm.state.Err = ""
		vm.loaded = true
		return nil
	case errors.Is(err, context.Canceled):
		// the caller gave up; the next render loads again
		vm.loaded = false
		return err
	default:
		vm.state.Data = nil
		vm.state.Err = Message(err)
		vm.loaded = true
		return err
	}
}

// NeedsLoad reports whether no load has completed and none is running.
func (vm *TableViewModel) NeedsLoad() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return !vm.loaded && !vm.state.Loading
}

// ToggleExpanded flips the expanded flag of the item with the given id and
// returns the new value. Numeric and string ids with the same digits match.
func (vm *TableViewModel) ToggleExpanded(id any) bool {
	key := KeyOf(id)
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.state.Expanded == nil {
		vm.state.Expanded = make(map[string]bool)
	}
	vm.state.Expanded[key] = !vm.state.Expanded[key]
	return vm.state.Expanded[key]
}

// IsExpanded reports whether the item is expanded.
func (vm *TableViewModel) IsExpanded(id any) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state.Expanded[KeyOf(id)]
}

// ExpandedIDs returns the ids currently expanded, sorted.
func (vm *TableViewModel) ExpandedIDs() []string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	ids := make([]string, 0, len(vm.state.Expanded))
	for id, open := range vm.state.Expanded {
		if open {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// PageButtons returns the page indices to render as buttons.
func (vm *TableViewModel) PageButtons() []int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return shared.Window(vm.state.Page, vm.totalPagesLocked(), shared.MaxPageButtons)
}

// CanGoPrev reports whether a previous page exists.
func (vm *TableViewModel) CanGoPrev() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state.Page > 0
}

// CanGoNext reports whether a next page exists and no load is running.
func (vm *TableViewModel) CanGoNext() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return !vm.state.Loading && vm.state.Page+1 < vm.totalPagesLocked()
}

// Snapshot returns a copy of the current state.
func (vm *TableViewModel) Snapshot() ViewState {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.snapshotLocked()
}

func (vm *TableViewModel) snapshotLocked() ViewState {
	out := vm.state
	out.Expanded = make(map[string]bool, len(vm.state.Expanded))
	for k, v := range vm.state.Expanded {
		out.Expanded[k] = v
	}
	return out
}

func (vm *TableViewModel) currentPage() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state.Page
}

func (vm *TableViewModel) totalPagesLocked() int {
	if vm.state.Data == nil {
		return 0
	}
	return vm.state.Data.TotalPages
}
