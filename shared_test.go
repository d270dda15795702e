package propstat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkRange(t *testing.T) {
	var chunkTests = []struct {
		n, threads int
		expected   [][2]int
	}{
		{10, 3, [][2]int{{0, 4}, {4, 8}, {8, 10}}},
		{9, 3, [][2]int{{0, 3}, {3, 6}, {6, 9}}},
		{2, 4, [][2]int{{0, 1}, {1, 2}, {2, 2}, {2, 2}}},
		{0, 2, [][2]int{{0, 0}, {0, 0}}},
		{5, 1, [][2]int{{0, 5}}},
	}

	for _, test := range chunkTests {
		covered := 0
		for thread, expected := range test.expected {
			lo, hi := chunkRange(test.n, test.threads, thread)
			assert.Equal(t, expected, [2]int{lo, hi}, "n=%d threads=%d thread=%d", test.n, test.threads, thread)
			covered += hi - lo
		}
		assert.Equal(t, test.n, covered)
	}
}

func TestRunSharedExample(t *testing.T) {
	sets := []FieldSet{
		{present(5), present(100)},
		{present(10), present(50)},
		{Price: present(200)},
		{present(3), present(-10)},
	}

	r, err := runShared(context.Background(), sets, 2)
	assert.Nil(t, err)
	assert.Equal(t, Extrema{MaxSize: observed(10), MinPrice: observed(50)}, r.Extrema)
	assert.Equal(t, int64(4), r.Rows)
}

func TestRunSharedPartitionIndependence(t *testing.T) {
	ex := Extractor{SizeColumn: DefaultSizeColumn, PriceColumn: DefaultPriceColumn, TrimQuotes: true, Parse: ParseLeadingInt}
	rows := housingRows(500, 2)

	sets := make([]FieldSet, 0, len(rows))
	for _, row := range rows {
		sets = append(sets, ex.Extract(row))
	}
	expected := sequentialExtrema(rows, ex)

	for threads := 1; threads <= 16; threads++ {
		r, err := runShared(context.Background(), sets, threads)
		assert.Nil(t, err)
		assert.Equal(t, expected, r.Extrema, "thread count %d", threads)
	}
}

func TestRunSharedIdleThreads(t *testing.T) {
	sets := []FieldSet{{present(7), present(3)}}

	r, err := runShared(context.Background(), sets, 8)
	assert.Nil(t, err)
	assert.Equal(t, Extrema{MaxSize: observed(7), MinPrice: observed(3)}, r.Extrema)
}

func TestRunSharedInvalidThreads(t *testing.T) {
	sets := []FieldSet{{present(7), present(3)}}

	r, err := runShared(context.Background(), sets, 0)
	assert.Nil(t, err)
	assert.Equal(t, observed(7), r.Extrema.MaxSize)
}

func TestRunSharedCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runShared(ctx, []FieldSet{{present(1), present(1)}}, 2)
	assert.Equal(t, context.Canceled, err)
}
