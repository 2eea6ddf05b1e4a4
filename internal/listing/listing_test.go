package listing

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/alipan-go/internal/alipan"
)

// pagedLister serves fixed pages and records the markers it was called with.
type pagedLister struct {
	pages   [][]string
	loop    bool
	failAt  int
	markers []string
}

func (l *pagedLister) ListFiles(_ context.Context, driveID, parentFileID, marker string, _ int) (*alipan.Page, error) {
	l.markers = append(l.markers, marker)
	idx := len(l.markers) - 1

	if l.failAt > 0 && idx+1 == l.failAt {
		return nil, errors.New("boom")
	}

	if l.loop {
		return &alipan.Page{NextMarker: "again"}, nil
	}

	page := &alipan.Page{}
	for _, name := range l.pages[idx] {
		page.Items = append(page.Items, alipan.Item{DriveID: driveID, ParentFileID: parentFileID, FileID: name, Name: name})
	}

	if idx+1 < len(l.pages) {
		page.NextMarker = "m" + strconv.Itoa(idx+1)
	}

	return page, nil
}

func names(items []alipan.Item) []string {
	out := make([]string, 0, len(items))
	for i := range items {
		out = append(out, items[i].Name)
	}

	return out
}

func TestListAll_ConcatenatesPages(t *testing.T) {
	lister := &pagedLister{pages: [][]string{{"A", "B"}, {"C"}}}
	agg := NewAggregator(lister, 2, 0, nil)

	items, err := agg.ListAll(context.Background(), "d1", "root")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, names(items))
	assert.Equal(t, []string{"", "m1"}, lister.markers)
}

func TestListAll_CallCountMatchesPages(t *testing.T) {
	for _, k := range []int{1, 3, 7} {
		t.Run(strconv.Itoa(k), func(t *testing.T) {
			pages := make([][]string, k)
			want := []string{}

			for i := range pages {
				for j := range 3 {
					name := strconv.Itoa(i) + "-" + strconv.Itoa(j)
					pages[i] = append(pages[i], name)
					want = append(want, name)
				}
			}

			lister := &pagedLister{pages: pages}

			items, err := NewAggregator(lister, 3, 0, nil).ListAll(context.Background(), "d1", "f")
			require.NoError(t, err)
			assert.Equal(t, want, names(items))
			assert.Len(t, lister.markers, k)
		})
	}
}

func TestListAll_EmptyFolder(t *testing.T) {
	lister := &pagedLister{pages: [][]string{{}}}

	items, err := NewAggregator(lister, 0, 0, nil).ListAll(context.Background(), "d1", "root")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestListAll_Truncated(t *testing.T) {
	lister := &pagedLister{loop: true}

	_, err := NewAggregator(lister, 0, 4, nil).ListAll(context.Background(), "d1", "root")
	require.ErrorIs(t, err, ErrListingTruncated)
	assert.Len(t, lister.markers, 4)
}

func TestListAll_PageErrorDiscardsPartialResult(t *testing.T) {
	lister := &pagedLister{pages: [][]string{{"A"}, {"B"}, {"C"}}, failAt: 2}

	items, err := NewAggregator(lister, 0, 0, nil).ListAll(context.Background(), "d1", "root")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 2")
	assert.Nil(t, items)
}
