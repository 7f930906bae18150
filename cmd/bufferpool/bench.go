package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/djdv/go-bufferpool"
	"github.com/djdv/go-bufferpool/heapfile"
	"github.com/djdv/go-bufferpool/internal/logger"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type benchCommand struct {
	file       string
	pageSize   string
	pages      int
	operations int
	workers    int
	prefetch   int
	configPath string
	verbose    bool
	cfg        *bufferpool.Config

	stdout, stderr io.Writer
}

func newBenchCommand(stdout, stderr io.Writer) *cobra.Command {
	bc := &benchCommand{
		cfg:    bufferpool.NewDefaultConfig(),
		stdout: stdout,
		stderr: stderr,
	}
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a random read/modify workload.",
		Long: `bench creates a heap file with the requested number of pages,
then runs concurrent workers that pin, modify and unpin random pages,
occasionally prefetching the pages that follow. Statistics are printed
once the pool has been closed.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(bc.configPath, bc.cfg, cmd.Flags().Changed)
			if err != nil {
				return err
			}
			bc.cfg = cfg
			return bc.run(cmd.Context())
		},
	}
	flags := benchCmd.Flags()
	flags.StringVar(&bc.file, "file", "bench.heap", "heap file to create")
	flags.StringVar(&bc.pageSize, "page-size", bufferpool.PageSize8K.String(), "page size of the heap file")
	flags.IntVar(&bc.pages, "pages", 4096, "pages to create before the workload starts")
	flags.IntVar(&bc.operations, "ops", 100_000, "operations per worker")
	flags.IntVar(&bc.workers, "workers", 8, "concurrent workers")
	flags.IntVar(&bc.prefetch, "prefetch", 4, "pages to prefetch after every sequential access")
	flags.StringVarP(&bc.configPath, "config", "c", "", "TOML configuration file")
	flags.BoolVarP(&bc.verbose, "verbose", "v", false, "log debug messages")
	bc.cfg.DefineFlags(flags)
	return benchCmd
}

func (bc *benchCommand) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if bc.pages < 1 || bc.workers < 1 {
		return errors.New("pages and workers must be positive")
	}
	size, err := bufferpool.ParsePageSize(bc.pageSize)
	if err != nil {
		return err
	}
	file, err := heapfile.Open(bc.file, size)
	if err != nil {
		return err
	}
	const table = bufferpool.ResourceID(1)
	var (
		log      = logger.NewStandardLogger(bc.stderr, bc.verbose)
		registry = prometheus.NewRegistry()
	)
	pool, err := bufferpool.New(*bc.cfg,
		bufferpool.WithLogger(log),
		bufferpool.WithRegisterer(registry),
	)
	if err != nil {
		file.Close()
		return err
	}
	if err := pool.RegisterResource(table, file); err != nil {
		file.Close()
		return err
	}
	if err := pool.Start(); err != nil {
		pool.Close()
		return err
	}

	for range max(bc.pages-file.NumPages(), 0) {
		page, err := pool.CreateNewPageAndPin(ctx, table)
		if err != nil {
			pool.Close()
			return errors.Wrap(err, "populating heap file")
		}
		pool.UnpinPage(table, page.PageNumber())
	}
	log.Infof("heap file %s holds %d pages", bc.file, file.NumPages())

	start := time.Now()
	group, ctx := errgroup.WithContext(ctx)
	for worker := range bc.workers {
		group.Go(func() error {
			return bc.work(ctx, pool, table, file.NumPages(), uint64(worker))
		})
	}
	workErr := group.Wait()
	elapsed := time.Since(start)
	if err := pool.Close(); err != nil {
		return err
	}
	if workErr != nil {
		return workErr
	}
	bc.report(pool.Stats(), registry, elapsed)
	return nil
}

// work alternates between random accesses and short sequential runs.
func (bc *benchCommand) work(ctx context.Context, pool *bufferpool.Pool, table bufferpool.ResourceID, pages int, seed uint64) error {
	rng := rand.New(rand.NewPCG(seed, 0x62756666))
	current := rng.IntN(pages)
	page, err := pool.GetPageAndPin(ctx, table, current)
	if err != nil {
		return err
	}
	for op := range bc.operations {
		next := rng.IntN(pages)
		if op%4 != 0 {
			next = (current + 1) % pages
			if bc.prefetch > 0 {
				if err := pool.PrefetchPages(table, next+1, min(next+bc.prefetch, pages-1)); err != nil {
					return err
				}
			}
		}
		if next == current {
			continue
		}
		if page, err = pool.UnpinAndGetPageAndPin(ctx, table, current, next); err != nil {
			return err
		}
		current = next
		if rng.IntN(10) == 0 {
			heapPage := page.(*heapfile.Page)
			heapPage.Payload()[op%len(heapPage.Payload())]++
			heapPage.MarkModified()
		}
	}
	pool.UnpinPage(table, current)
	return nil
}

func (bc *benchCommand) report(stats bufferpool.Stats, registry *prometheus.Registry, elapsed time.Duration) {
	total := bc.operations * bc.workers
	fmt.Fprintf(bc.stdout, "%d operations in %v (%.0f ops/s)\n",
		total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())
	for _, class := range stats.Classes {
		fmt.Fprintf(bc.stdout, "%s pages: resident %d/%d, ghosts %d, target %.1f, free buffers %d\n",
			class.PageSize, class.Resident, class.Capacity, class.Ghosts, class.Target, class.FreeBuffers)
	}
	families, err := registry.Gather()
	if err != nil {
		fmt.Fprintf(bc.stderr, "gathering metrics: %v\n", err)
		return
	}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			var value float64
			switch {
			case metric.GetCounter() != nil:
				value = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				value = metric.GetGauge().GetValue()
			}
			var labels string
			for _, pair := range metric.GetLabel() {
				labels += " " + pair.GetName() + "=" + pair.GetValue()
			}
			fmt.Fprintf(bc.stdout, "%s%s %g\n", family.GetName(), labels, value)
		}
	}
}
