package bufferpool

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/djdv/go-bufferpool/pagecache"
)

type (
	// ResourceID identifies a registered table or index.
	ResourceID = pagecache.ResourceID
	// PageID is the identity of a page within the pool.
	PageID = pagecache.ID

	// PageSize is one of the supported page sizes.
	// Resources of the same size share a cache and a free set.
	PageSize int

	// PageKind selects the layout [Resource.ReserveNewPage] formats.
	PageKind uint8

	// Page is the in-memory form of a page, backed by a buffer
	// owned by the pool.
	Page interface {
		PageNumber() int
		Buffer() []byte
		HasBeenModified() bool
		// MarkExpired is called once the page's buffer
		// has been handed to someone else.
		MarkExpired()
		IsExpired() bool
	}

	// Resource is a page-addressable file, such as a table or an index.
	// Implementations must allow ReadPage and WritePage to be called
	// concurrently with each other.
	Resource interface {
		PageSize() PageSize
		ReadPage(buffer []byte, pageNumber int) (Page, error)
		WritePage(buffer []byte, page Page) error
		ReserveNewPage(buffer []byte, kind PageKind) (Page, error)
		Close() error
	}
)

const (
	PageSize4K  PageSize = 4 << 10
	PageSize8K  PageSize = 8 << 10
	PageSize16K PageSize = 16 << 10
	PageSize32K PageSize = 32 << 10
	PageSize64K PageSize = 64 << 10
)

const (
	KindTableData PageKind = iota
	KindIndexLeaf
	KindIndexInner
	KindOverflow
)

// PageSizes lists every supported size in ascending order.
var PageSizes = [...]PageSize{PageSize4K, PageSize8K, PageSize16K, PageSize32K, PageSize64K}

// Bytes returns the size in bytes.
func (s PageSize) Bytes() int { return int(s) }

// Valid reports whether s is one of [PageSizes].
func (s PageSize) Valid() bool {
	for _, size := range PageSizes {
		if s == size {
			return true
		}
	}
	return false
}

func (s PageSize) String() string {
	if s.Valid() {
		return strconv.Itoa(int(s)>>10) + "K"
	}
	return fmt.Sprintf("PageSize(%d)", int(s))
}

// ParsePageSize accepts either the [PageSize.String] form ("8K")
// or a byte count ("8192").
func ParsePageSize(s string) (PageSize, error) {
	var (
		text  = strings.ToUpper(strings.TrimSpace(s))
		scale = 1
	)
	if trimmed, ok := strings.CutSuffix(text, "K"); ok {
		text, scale = trimmed, 1<<10
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, newError(ErrInvalidConfig, fmt.Sprintf("invalid page size %q", s))
	}
	size := PageSize(n * scale)
	if !size.Valid() {
		return 0, newError(ErrInvalidConfig, fmt.Sprintf("unsupported page size %q", s))
	}
	return size, nil
}

func (k PageKind) String() string {
	switch k {
	case KindTableData:
		return "table-data"
	case KindIndexLeaf:
		return "index-leaf"
	case KindIndexInner:
		return "index-inner"
	case KindOverflow:
		return "overflow"
	default:
		return fmt.Sprintf("PageKind(%d)", uint8(k))
	}
}
