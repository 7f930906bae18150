package heapfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/djdv/go-bufferpool"
	"github.com/djdv/go-bufferpool/heapfile"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const size = bufferpool.PageSize4K

func openFile(t *testing.T) (*heapfile.File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.heap")
	f, err := heapfile.Open(path, size)
	require.NoError(t, err)
	return f, path
}

func TestReserveWriteRead(t *testing.T) {
	f, path := openFile(t)

	buffer := make([]byte, size.Bytes())
	page, err := f.ReserveNewPage(buffer, bufferpool.KindIndexLeaf)
	require.NoError(t, err)
	require.Equal(t, 0, page.PageNumber())
	require.True(t, page.HasBeenModified())

	heapPage := page.(*heapfile.Page)
	copy(heapPage.Payload(), "hello")
	require.NoError(t, f.WritePage(page.Buffer(), page))
	require.False(t, page.HasBeenModified())

	second, err := f.ReserveNewPage(make([]byte, size.Bytes()), bufferpool.KindTableData)
	require.NoError(t, err)
	require.Equal(t, 1, second.PageNumber())
	require.NoError(t, f.WritePage(second.Buffer(), second))
	require.Equal(t, 2, f.NumPages())
	require.NoError(t, f.Close())

	reopened, err := heapfile.Open(path, size)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, 2, reopened.NumPages())

	read, err := reopened.ReadPage(make([]byte, size.Bytes()), 0)
	require.NoError(t, err)
	readPage := read.(*heapfile.Page)
	require.Equal(t, bufferpool.KindIndexLeaf, readPage.Kind())
	require.Equal(t, "hello", string(readPage.Payload()[:5]))
	require.False(t, read.HasBeenModified())
}

func TestModifiedDuringWrite(t *testing.T) {
	f, _ := openFile(t)
	defer f.Close()

	page, err := f.ReserveNewPage(make([]byte, size.Bytes()), bufferpool.KindTableData)
	require.NoError(t, err)
	require.NoError(t, f.WritePage(page.Buffer(), page))

	heapPage := page.(*heapfile.Page)
	heapPage.MarkModified()
	require.True(t, page.HasBeenModified())
	heapPage.MarkModified()
	require.NoError(t, f.WritePage(page.Buffer(), page))
	require.False(t, page.HasBeenModified())
}

func TestReadErrors(t *testing.T) {
	f, path := openFile(t)
	defer f.Close()

	_, err := f.ReadPage(make([]byte, size.Bytes()), 0)
	require.ErrorIs(t, err, heapfile.ErrPageOutOfFile)

	_, err = f.ReadPage(make([]byte, 10), 0)
	require.ErrorIs(t, err, heapfile.ErrBufferSize)

	_, err = f.ReserveNewPage(make([]byte, 10), bufferpool.KindTableData)
	require.ErrorIs(t, err, heapfile.ErrBufferSize)

	// Reserved but never written: the file is too short.
	_, err = f.ReserveNewPage(make([]byte, size.Bytes()), bufferpool.KindTableData)
	require.NoError(t, err)
	_, err = f.ReadPage(make([]byte, size.Bytes()), 0)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path+".raw", make([]byte, size.Bytes()), 0o644))
	raw, err := heapfile.Open(path+".raw", size)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.ReadPage(make([]byte, size.Bytes()), 0)
	require.True(t, errors.Is(err, heapfile.ErrBadMagic))
}

func TestOpenRejectsPartialPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "torn.heap")
	require.NoError(t, os.WriteFile(path, make([]byte, size.Bytes()+1), 0o644))
	_, err := heapfile.Open(path, size)
	require.Error(t, err)
}

func TestExpiredPagePanics(t *testing.T) {
	f, _ := openFile(t)
	defer f.Close()

	page, err := f.ReserveNewPage(make([]byte, size.Bytes()), bufferpool.KindOverflow)
	require.NoError(t, err)
	page.MarkExpired()
	require.True(t, page.IsExpired())
	require.PanicsWithError(t, "page buffer has been reused: page 0", func() {
		page.Buffer()
	})
}
