package bufferpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/djdv/go-bufferpool/internal/logger"
	"github.com/djdv/go-bufferpool/pagecache"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

type (
	// Logger is the levelled logger used by the pool and its workers.
	Logger = logger.Logger

	// Pool mediates access to the pages of registered resources.
	// Pages are pinned while in use and written back when a
	// modified page is evicted. Constructed by [New].
	Pool struct {
		cfg        Config
		logger     Logger
		registerer prometheus.Registerer
		metrics    *metrics

		mu      sync.Mutex // Guards classes and started.
		classes map[PageSize]*sizeClass
		started bool

		resources *xsync.MapOf[ResourceID, Resource]
		loads     *loadQueue
		writes    *writeQueue

		closed   atomic.Bool
		closing  chan struct{}
		shutdown sync.Once
		ctx      context.Context
		cancel   context.CancelFunc
		group    *errgroup.Group
	}

	// sizeClass holds the state shared by resources of one page size.
	sizeClass struct {
		size PageSize
		free *freeList

		mu      sync.Mutex // Guards cache, pending, and request pins.
		cache   *pagecache.Cache[Page]
		pending map[PageID]*loadRequest
	}

	Option func(*Pool)
)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithRegisterer registers the pool's metrics with r
// instead of a private registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(p *Pool) { p.registerer = r }
}

// New creates a pool. Its workers run once [Pool.Start] is called.
func New(cfg Config, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:        cfg,
		logger:     logger.NopLogger,
		registerer: prometheus.NewRegistry(),
		classes:    make(map[PageSize]*sizeClass, len(PageSizes)),
		resources:  xsync.NewMapOf[ResourceID, Resource](),
		loads:      newLoadQueue(),
		writes:     newWriteQueue(),
		closing:    make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	m, err := newMetrics(p.registerer)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "registering metrics")
	}
	p.metrics = m
	return p, nil
}

// Start launches the reader and writer workers.
// Calling Start more than once has no effect.
func (p *Pool) Start() error {
	if p.closed.Load() {
		return closedError()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	group, ctx := errgroup.WithContext(p.ctx)
	group.Go(func() error { return p.readLoop(ctx) })
	group.Go(p.writeLoop)
	p.group, p.started = group, true
	p.logger.Infof("buffer pool started")
	return nil
}

// RegisterResource makes r's pages available under id.
// The cache and free set for r's page size are created on first use.
func (p *Pool) RegisterResource(id ResourceID, r Resource) error {
	if p.closed.Load() {
		return closedError()
	}
	size := r.PageSize()
	if !size.Valid() {
		return newError(ErrInvalidConfig, fmt.Sprintf("resource %d: unsupported page size %d", id, int(size)))
	}
	if _, err := p.classFor(size); err != nil {
		return err
	}
	if _, loaded := p.resources.LoadOrStore(id, r); loaded {
		return newError(ErrDuplicateEntry, fmt.Sprintf("resource %d is already registered", id))
	}
	p.logger.Debugf("registered resource %d (%s pages)", id, size)
	return nil
}

func (p *Pool) classFor(size PageSize) (*sizeClass, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if class, ok := p.classes[size]; ok {
		return class, nil
	}
	capacity := p.cfg.CacheSize(size)
	cache, err := pagecache.New[Page](capacity)
	if err != nil {
		return nil, wrapError(ErrInvalidConfig, err, "cache for %s pages", size)
	}
	label := size.String()
	class := &sizeClass{
		size:    size,
		free:    newFreeList(size, capacity+p.cfg.NumIOBuffers, p.metrics.freeBuffers.WithLabelValues(label)),
		cache:   cache,
		pending: make(map[PageID]*loadRequest, p.cfg.LoadQueueDepthHint),
	}
	p.classes[size] = class
	return class, nil
}

// lookup returns the handle and size class of a registered resource.
func (p *Pool) lookup(id ResourceID) (Resource, *sizeClass, error) {
	if p.closed.Load() {
		return nil, nil, closedError()
	}
	r, ok := p.resources.Load(id)
	if !ok {
		return nil, nil, unknownResourceError(id)
	}
	p.mu.Lock()
	class := p.classes[r.PageSize()]
	p.mu.Unlock()
	return r, class, nil
}

// GetPageAndPin returns the page, pinned on behalf of the caller.
// On a miss the call waits for the reader; concurrent misses
// for the same page share one read.
// If ctx ends first the pin reserved for the caller is released.
func (p *Pool) GetPageAndPin(ctx context.Context, id ResourceID, pageNumber int) (Page, error) {
	resource, class, err := p.lookup(id)
	if err != nil {
		return nil, err
	}
	var (
		pid   = PageID{Resource: id, Page: pageNumber}
		label = class.size.String()
	)
	class.mu.Lock()
	if page, ok := class.cache.Lookup(pid, true); ok {
		class.mu.Unlock()
		p.metrics.hits.WithLabelValues(label).Inc()
		return page, nil
	}
	request, joined := class.pending[pid]
	if joined {
		p.metrics.coalesced.WithLabelValues(label).Inc()
	} else {
		request = newLoadRequest(pid, class, resource)
		if !p.loads.push(request) {
			class.mu.Unlock()
			return nil, closedError()
		}
		class.pending[pid] = request
		p.metrics.misses.WithLabelValues(label).Inc()
	}
	request.pins++
	class.mu.Unlock()
	return p.await(ctx, request)
}

func (p *Pool) await(ctx context.Context, request *loadRequest) (Page, error) {
	select {
	case <-request.done:
		return request.page, request.err
	case <-ctx.Done():
	}
	class := request.class
	class.mu.Lock()
	defer class.mu.Unlock()
	if !request.completed() {
		request.pins--
	} else if request.err == nil {
		class.cache.Unpin(request.id)
	}
	return nil, errors.WithStack(ctx.Err())
}

// UnpinAndGetPageAndPin releases unpin and then acquires get.
func (p *Pool) UnpinAndGetPageAndPin(ctx context.Context, id ResourceID, unpin, get int) (Page, error) {
	p.UnpinPage(id, unpin)
	return p.GetPageAndPin(ctx, id, get)
}

// UnpinPage releases one pin of the page, if it is resident.
func (p *Pool) UnpinPage(id ResourceID, pageNumber int) {
	r, ok := p.resources.Load(id)
	if !ok {
		return
	}
	p.mu.Lock()
	class := p.classes[r.PageSize()]
	p.mu.Unlock()
	class.mu.Lock()
	defer class.mu.Unlock()
	class.cache.Unpin(PageID{Resource: id, Page: pageNumber})
}

// PinCount returns the outstanding pins of a resident page.
func (p *Pool) PinCount(id ResourceID, pageNumber int) int {
	_, class, err := p.lookup(id)
	if err != nil {
		return 0
	}
	class.mu.Lock()
	defer class.mu.Unlock()
	return class.cache.Pins(PageID{Resource: id, Page: pageNumber})
}

// PrefetchPage schedules a read of the page if it is neither
// resident nor already being loaded. It never waits for the read.
func (p *Pool) PrefetchPage(id ResourceID, pageNumber int) error {
	resource, class, err := p.lookup(id)
	if err != nil {
		return err
	}
	pid := PageID{Resource: id, Page: pageNumber}
	class.mu.Lock()
	defer class.mu.Unlock()
	if _, ok := class.cache.Lookup(pid, false); ok {
		p.metrics.hits.WithLabelValues(class.size.String()).Inc()
		return nil
	}
	if _, ok := class.pending[pid]; ok {
		return nil
	}
	request := newLoadRequest(pid, class, resource)
	if !p.loads.push(request) {
		return closedError()
	}
	class.pending[pid] = request
	return nil
}

// PrefetchPages calls [Pool.PrefetchPage] for every page in [lo, hi].
func (p *Pool) PrefetchPages(id ResourceID, lo, hi int) error {
	for pageNumber := lo; pageNumber <= hi; pageNumber++ {
		if err := p.PrefetchPage(id, pageNumber); err != nil {
			return err
		}
	}
	return nil
}

// CreateNewPageAndPin is [Pool.CreateNewPageAndPinKind] with [KindTableData].
func (p *Pool) CreateNewPageAndPin(ctx context.Context, id ResourceID) (Page, error) {
	return p.CreateNewPageAndPinKind(ctx, id, KindTableData)
}

// CreateNewPageAndPinKind has the resource format a new page of kind
// and admits it pinned. It waits for a free buffer if none is available.
func (p *Pool) CreateNewPageAndPinKind(ctx context.Context, id ResourceID, kind PageKind) (Page, error) {
	resource, class, err := p.lookup(id)
	if err != nil {
		return nil, err
	}
	buffer, err := class.free.acquire(ctx, p.closing)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	page, err := resource.ReserveNewPage(buffer, kind)
	if err != nil {
		class.free.release(buffer)
		return nil, wrapError(ErrFormatFailure, err, "resource %d: reserving %s page", id, kind)
	}
	pid := PageID{Resource: id, Page: page.PageNumber()}
	class.mu.Lock()
	defer class.mu.Unlock()
	if p.closed.Load() {
		class.free.recycle(page)
		return nil, closedError()
	}
	if err := p.admit(class, pid, page, 1); err != nil {
		class.free.recycle(page)
		return nil, err
	}
	p.logger.Debugf("created %s page %v", kind, pid)
	return page, nil
}

// admit inserts page with pins pins and disposes of the victim.
// The caller must hold class.mu.
func (p *Pool) admit(class *sizeClass, id PageID, page Page, pins int) error {
	var (
		eviction pagecache.Eviction[Page]
		evicted  bool
		err      error
	)
	if pins > 0 {
		eviction, evicted, err = class.cache.Insert(id, page, true)
	} else {
		eviction, evicted, err = class.cache.Prefetch(id, page)
	}
	if err != nil {
		return engineError(err, id)
	}
	for range pins - 1 {
		class.cache.Pin(id)
	}
	if evicted {
		p.retire(class, eviction)
	}
	p.metrics.resident.WithLabelValues(class.size.String()).Set(float64(class.cache.Len()))
	return nil
}

// retire hands an evicted page's buffer to the writer when the page
// is modified, and to the free set otherwise.
// The caller must hold class.mu.
func (p *Pool) retire(class *sizeClass, eviction pagecache.Eviction[Page]) {
	var (
		page  = eviction.Value
		dirty = !eviction.Invalidated && page.HasBeenModified()
	)
	p.metrics.eviction(class.size, dirty)
	if !dirty {
		class.free.recycle(page)
		return
	}
	resource, ok := p.resources.Load(eviction.ID.Resource)
	if ok && p.writes.push(&writeRequest{
		id:       eviction.ID,
		class:    class,
		resource: resource,
		page:     page,
	}) {
		return
	}
	p.logger.Errorf("dropping modified page %v: no writer available", eviction.ID)
	class.free.recycle(page)
}

// UnregisterResource fails the resource's pending loads, persists its
// modified resident pages, marks its pages for removal, and closes it.
func (p *Pool) UnregisterResource(id ResourceID) error {
	if p.closed.Load() {
		return closedError()
	}
	resource, ok := p.resources.LoadAndDelete(id)
	if !ok {
		return unknownResourceError(id)
	}
	p.mu.Lock()
	class := p.classes[resource.PageSize()]
	p.mu.Unlock()
	var err error

	class.mu.Lock()
	for pid, request := range class.pending {
		if pid.Resource == id {
			request.complete(nil, unknownResourceError(id))
		}
	}
	var modified []Page
	for page := range class.cache.EntriesFor(id) {
		if page.HasBeenModified() {
			modified = append(modified, page)
			class.cache.Pin(PageID{Resource: id, Page: page.PageNumber()})
		}
	}
	class.mu.Unlock()

	for _, page := range modified {
		if writeErr := resource.WritePage(page.Buffer(), page); writeErr != nil {
			p.metrics.ioFailures.WithLabelValues(class.size.String()).Inc()
			err = multierr.Append(err, wrapError(ErrIOFailure, writeErr, "writing page %d of resource %d", page.PageNumber(), id))
			continue
		}
		p.metrics.writes.WithLabelValues(class.size.String()).Inc()
	}

	class.mu.Lock()
	for _, page := range modified {
		class.cache.Unpin(PageID{Resource: id, Page: page.PageNumber()})
	}
	class.cache.Invalidate(id)
	class.mu.Unlock()

	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		p.writes.waitFor(func(pid PageID) bool { return pid.Resource == id })
	}
	if closeErr := resource.Close(); closeErr != nil {
		err = multierr.Append(err, errors.Wrapf(closeErr, "closing resource %d", id))
	}
	p.logger.Debugf("unregistered resource %d", id)
	return err
}

// Close stops accepting requests, fails pending loads, writes back
// every modified page, waits for the writer to drain, and closes
// the registered resources.
func (p *Pool) Close() error {
	var err error
	p.shutdown.Do(func() { err = p.close() })
	return err
}

func (p *Pool) close() error {
	p.closed.Store(true)
	close(p.closing)
	p.loads.close()
	p.cancel()

	p.mu.Lock()
	classes := make([]*sizeClass, 0, len(p.classes))
	for _, class := range p.classes {
		classes = append(classes, class)
	}
	started := p.started
	p.mu.Unlock()

	var flushed int
	for _, class := range classes {
		flushed += p.flush(class)
	}
	p.writes.close()

	var err error
	if started {
		err = p.group.Wait()
	} else {
		err = p.writeLoop()
	}
	p.resources.Range(func(id ResourceID, r Resource) bool {
		if closeErr := r.Close(); closeErr != nil {
			err = multierr.Append(err, errors.Wrapf(closeErr, "closing resource %d", id))
		}
		return true
	})
	p.resources.Clear()
	p.logger.Infof("buffer pool closed, %d modified pages written back", flushed)
	return err
}

// flush fails pending loads of class, releases every pin, and queues
// its modified resident pages for write-back.
func (p *Pool) flush(class *sizeClass) (queued int) {
	class.mu.Lock()
	defer class.mu.Unlock()
	for _, request := range class.pending {
		request.complete(nil, closedError())
	}
	class.cache.UnpinAll()
	p.resources.Range(func(id ResourceID, resource Resource) bool {
		if resource.PageSize() != class.size {
			return true
		}
		for page := range class.cache.EntriesFor(id) {
			if !page.HasBeenModified() {
				continue
			}
			if p.writes.push(&writeRequest{
				id:       PageID{Resource: id, Page: page.PageNumber()},
				class:    class,
				resource: resource,
				page:     page,
			}) {
				queued++
			}
		}
		return true
	})
	return queued
}
