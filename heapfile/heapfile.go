// Package heapfile stores fixed-size pages in a single file.
// Page n lives at offset n*pageSize and starts with a small header
// identifying the page.
package heapfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/djdv/go-bufferpool"
	"github.com/pkg/errors"
)

const (
	// Magic marks a formatted page.
	Magic uint32 = 0x48454150 // "HEAP"
	// HeaderSize is the number of bytes reserved at the start of every page.
	HeaderSize = 16

	offsetMagic  = 0
	offsetNumber = 4
	offsetKind   = 8
)

var (
	ErrPageExpired   = errors.New("page buffer has been reused")
	ErrBadMagic      = errors.New("page is not formatted")
	ErrPageMismatch  = errors.New("page header does not match its location")
	ErrBufferSize    = errors.New("buffer does not match the page size")
	ErrPageOutOfFile = errors.New("page number is outside the file")
)

// File is a [bufferpool.Resource] backed by one OS file.
// Reads and writes use positional I/O and may run concurrently.
type File struct {
	file *os.File
	size bufferpool.PageSize
	next atomic.Int64
}

var _ bufferpool.Resource = (*File)(nil)

// Open opens or creates the file at path.
// An existing file must hold a whole number of pages.
func Open(path string, size bufferpool.PageSize) (*File, error) {
	if !size.Valid() {
		return nil, errors.Errorf("unsupported page size %d", int(size))
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "opening heap file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	if info.Size()%int64(size.Bytes()) != 0 {
		file.Close()
		return nil, errors.Errorf("%s: size %d is not a multiple of %s pages", path, info.Size(), size)
	}
	f := &File{file: file, size: size}
	f.next.Store(info.Size() / int64(size.Bytes()))
	return f, nil
}

func (f *File) PageSize() bufferpool.PageSize { return f.size }

// NumPages returns the number of pages reserved so far.
func (f *File) NumPages() int { return int(f.next.Load()) }

func (f *File) offset(pageNumber int) int64 {
	return int64(pageNumber) * int64(f.size.Bytes())
}

func (f *File) ReadPage(buffer []byte, pageNumber int) (bufferpool.Page, error) {
	if len(buffer) != f.size.Bytes() {
		return nil, errors.Wrapf(ErrBufferSize, "%d bytes for %s pages", len(buffer), f.size)
	}
	if pageNumber < 0 || int64(pageNumber) >= f.next.Load() {
		return nil, errors.Wrapf(ErrPageOutOfFile, "page %d of %d", pageNumber, f.next.Load())
	}
	if _, err := f.file.ReadAt(buffer, f.offset(pageNumber)); err != nil {
		return nil, errors.Wrapf(err, "reading page %d", pageNumber)
	}
	if magic := binary.LittleEndian.Uint32(buffer[offsetMagic:]); magic != Magic {
		return nil, errors.Wrapf(ErrBadMagic, "page %d: magic %#x", pageNumber, magic)
	}
	if number := binary.LittleEndian.Uint32(buffer[offsetNumber:]); int(number) != pageNumber {
		return nil, errors.Wrapf(ErrPageMismatch, "page %d: header says %d", pageNumber, number)
	}
	return &Page{
		number: pageNumber,
		kind:   bufferpool.PageKind(buffer[offsetKind]),
		buffer: buffer,
	}, nil
}

func (f *File) WritePage(buffer []byte, page bufferpool.Page) error {
	if len(buffer) != f.size.Bytes() {
		return errors.Wrapf(ErrBufferSize, "%d bytes for %s pages", len(buffer), f.size)
	}
	var (
		heapPage, ok = page.(*Page)
		version      uint64
	)
	if ok {
		version = heapPage.version.Load()
	}
	pageNumber := page.PageNumber()
	if _, err := f.file.WriteAt(buffer, f.offset(pageNumber)); err != nil {
		return errors.Wrapf(err, "writing page %d", pageNumber)
	}
	if ok {
		heapPage.written.Store(version)
	}
	return nil
}

// ReserveNewPage formats the next page number into buffer.
// The page is reported as modified until it is written.
func (f *File) ReserveNewPage(buffer []byte, kind bufferpool.PageKind) (bufferpool.Page, error) {
	if len(buffer) != f.size.Bytes() {
		return nil, errors.Wrapf(ErrBufferSize, "%d bytes for %s pages", len(buffer), f.size)
	}
	if kind > bufferpool.KindOverflow {
		return nil, errors.Errorf("unknown page kind %d", uint8(kind))
	}
	pageNumber := int(f.next.Add(1) - 1)
	clear(buffer)
	binary.LittleEndian.PutUint32(buffer[offsetMagic:], Magic)
	binary.LittleEndian.PutUint32(buffer[offsetNumber:], uint32(pageNumber))
	buffer[offsetKind] = byte(kind)
	page := &Page{
		number: pageNumber,
		kind:   kind,
		buffer: buffer,
	}
	page.version.Store(1)
	return page, nil
}

func (f *File) Close() error {
	if err := f.file.Sync(); err != nil {
		f.file.Close()
		return errors.Wrap(err, "syncing heap file")
	}
	return errors.Wrap(f.file.Close(), "closing heap file")
}

// Page is a page of a [File].
// Accessors panic once the page has expired.
type Page struct {
	number int
	kind   bufferpool.PageKind
	buffer []byte
	// version counts modifications; written is the
	// version last persisted by WritePage.
	version, written atomic.Uint64
	expired          atomic.Bool
}

var _ bufferpool.Page = (*Page)(nil)

func (p *Page) check() {
	if p.expired.Load() {
		panic(fmt.Errorf("%w: page %d", ErrPageExpired, p.number))
	}
}

func (p *Page) PageNumber() int {
	p.check()
	return p.number
}

func (p *Page) Kind() bufferpool.PageKind {
	p.check()
	return p.kind
}

// Buffer returns the whole page, header included.
func (p *Page) Buffer() []byte {
	p.check()
	return p.buffer
}

// Payload returns the bytes after the header.
func (p *Page) Payload() []byte {
	p.check()
	return p.buffer[HeaderSize:]
}

// MarkModified records that the payload changed.
func (p *Page) MarkModified() {
	p.check()
	p.version.Add(1)
}

func (p *Page) HasBeenModified() bool {
	p.check()
	return p.version.Load() != p.written.Load()
}

func (p *Page) MarkExpired()    { p.expired.Store(true) }
func (p *Page) IsExpired() bool { return p.expired.Load() }
