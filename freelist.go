package bufferpool

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// freeList holds the buffers of one page size that are not owned
// by the cache or by a write-back request.
// Its channel is sized to hold every buffer, so release never blocks.
type freeList struct {
	size    PageSize
	buffers chan []byte
	gauge   prometheus.Gauge
}

func newFreeList(size PageSize, count int, gauge prometheus.Gauge) *freeList {
	buffers := make(chan []byte, count)
	for range count {
		buffers <- make([]byte, size.Bytes())
	}
	gauge.Set(float64(count))
	return &freeList{
		size:    size,
		buffers: buffers,
		gauge:   gauge,
	}
}

// acquire blocks until a buffer is returned to the list,
// ctx is done, or closing is closed.
func (f *freeList) acquire(ctx context.Context, closing <-chan struct{}) ([]byte, error) {
	select {
	case buffer := <-f.buffers:
		f.gauge.Dec()
		return buffer, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-closing:
		return nil, closedError()
	}
}

// release zeroes buffer and returns it to the list.
func (f *freeList) release(buffer []byte) {
	clear(buffer)
	f.buffers <- buffer
	f.gauge.Inc()
}

// recycle takes the buffer back from page, which must not be used again.
func (f *freeList) recycle(page Page) {
	buffer := page.Buffer()
	page.MarkExpired()
	f.release(buffer)
}

func (f *freeList) len() int { return len(f.buffers) }
