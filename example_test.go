package bufferpool_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/djdv/go-bufferpool"
	"github.com/djdv/go-bufferpool/heapfile"
)

func ExamplePool() {
	dir, err := os.MkdirTemp("", "bufferpool")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	const table = bufferpool.ResourceID(1)
	file, err := heapfile.Open(filepath.Join(dir, "table.heap"), bufferpool.PageSize8K)
	if err != nil {
		panic(err)
	}
	cfg := bufferpool.NewDefaultConfig()
	cfg.DefaultCacheSize = 2
	pool, err := bufferpool.New(*cfg)
	if err != nil {
		panic(err)
	}
	if err := pool.RegisterResource(table, file); err != nil {
		panic(err)
	}
	if err := pool.Start(); err != nil {
		panic(err)
	}

	ctx := context.Background()
	for i := range 3 {
		page, err := pool.CreateNewPageAndPin(ctx, table)
		if err != nil {
			panic(err)
		}
		copy(page.(*heapfile.Page).Payload(), fmt.Sprintf("row %d", i))
		page.(*heapfile.Page).MarkModified()
		pool.UnpinPage(table, page.PageNumber())
	}

	// Page 0 was evicted and written back when page 2 was created.
	page, err := pool.GetPageAndPin(ctx, table, 0)
	if err != nil {
		panic(err)
	}
	fmt.Println(string(page.(*heapfile.Page).Payload()[:5]))
	pool.UnpinPage(table, 0)

	if err := pool.Close(); err != nil {
		panic(err)
	}
	fmt.Println(file.NumPages(), "pages")
	// Output:
	// row 0
	// 3 pages
}
