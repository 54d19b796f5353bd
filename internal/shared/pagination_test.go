package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampPage(t *testing.T) {
	cases := []struct {
		page, total, want int
	}{
		{page: 0, total: 0, want: 0},
		{page: 5, total: 0, want: 0},
		{page: -1, total: 10, want: 0},
		{page: 3, total: 10, want: 3},
		{page: 10, total: 10, want: 9},
		{page: 99, total: 1, want: 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClampPage(tc.page, tc.total), "page=%d total=%d", tc.page, tc.total)
	}
}

func TestWindow(t *testing.T) {
	cases := []struct {
		name        string
		page, total int
		want        []int
	}{
		{name: "start", page: 0, total: 10, want: []int{0, 1, 2, 3, 4, 5, 6}},
		{name: "middle", page: 5, total: 20, want: []int{2, 3, 4, 5, 6, 7, 8}},
		{name: "end", page: 9, total: 10, want: []int{3, 4, 5, 6, 7, 8, 9}},
		{name: "fewer pages than buttons", page: 1, total: 3, want: []int{0, 1, 2}},
		{name: "single page", page: 0, total: 1, want: nil},
		{name: "unknown", page: 0, total: 0, want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Window(tc.page, tc.total, MaxPageButtons)
			assert.Equal(t, tc.want, got)
			assert.LessOrEqual(t, len(got), MaxPageButtons)
		})
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(12, 20, 5, 93)

	assert.Equal(t, 4, p.Page)
	assert.Equal(t, int64(93), p.Total)
	assert.True(t, p.HasPrev())
	assert.False(t, p.HasNext())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, p.Window())

	empty := NewPagination(3, 20, -1, 0)
	assert.Equal(t, 0, empty.Page)
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasPrev())
	assert.False(t, empty.HasNext())
	assert.Nil(t, empty.Window())
}
