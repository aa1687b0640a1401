package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	ticketingv1 "github.com/vladislavdragonenkov/ticketing/api/ticketing/v1"
)

func run(ctx context.Context, opts options, out io.Writer) (report, error) {
	creds, err := newCredentials(opts.secret, opts.tokenTTL)
	if err != nil {
		return report{}, err
	}

	clients := make([]ticketingv1.OrderServiceClient, 0, opts.conns)
	for range opts.conns {
		conn, err := grpc.NewClient(opts.target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return report{}, fmt.Errorf("grpc client for %s: %w", opts.target, err)
		}
		defer conn.Close()
		clients = append(clients, ticketingv1.NewOrderServiceClient(conn))
	}

	p := &player{
		opts:  opts,
		creds: creds,
		rec:   newRecorder(),
		runID: uuid.NewString()[:8],
	}

	startedAt := time.Now()
	schedule(ctx, opts, func(i int) {
		_ = p.play(clients[i%len(clients)], i)
	})
	result := p.rec.report(startedAt, time.Since(startedAt))

	printReport(out, result, opts)
	if opts.reportPath != "" {
		if err := saveReport(opts.reportPath, result); err != nil {
			return result, fmt.Errorf("save report: %w", err)
		}
	}
	return result, nil
}

// schedule запускает сценарии не более чем в opts.workers горутинах, пока не
// исчерпан счётчик, не истекла duration или не отменён ctx. Возвращает число запущенных.
func schedule(ctx context.Context, opts options, play func(int)) int {
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	var g errgroup.Group
	g.SetLimit(opts.workers)

	started := 0
	for i := 0; opts.scenarios == 0 || i < opts.scenarios; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			play(i)
			return nil
		})
		started++
	}
	_ = g.Wait()
	return started
}

func printReport(out io.Writer, r report, opts options) {
	fmt.Fprintf(out, "flow=%s ticket=%s run=%s\n", opts.flow, opts.ticketID, opts.describe())
	fmt.Fprintf(out, "scenarios: %d ok, %d failed (error rate %.4f), %.2f/s over %.2fs\n",
		r.Scenarios.OK, r.Scenarios.Failed, r.Scenarios.ErrorRate, r.Throughput, r.ElapsedSeconds)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "call\tcalls\tfailed\tp50 ms\tp95 ms\tp99 ms\tcodes")
	fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%v\n", scenarioOp,
		r.Scenarios.Calls, r.Scenarios.Failed, r.Scenarios.LatencyMs.P50, r.Scenarios.LatencyMs.P95, r.Scenarios.LatencyMs.P99, r.Scenarios.Codes)

	names := make([]string, 0, len(r.Calls))
	for name := range r.Calls {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		c := r.Calls[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%v\n", name,
			c.Calls, c.Failed, c.LatencyMs.P50, c.LatencyMs.P95, c.LatencyMs.P99, c.Codes)
	}
	_ = tw.Flush()
}

// saveReport пишет отчёт в JSON. Относительный путь не должен выходить за рабочий каталог.
func saveReport(path string, r report) error {
	clean := filepath.Clean(path)
	if clean == "." || clean == string(filepath.Separator) {
		return errors.New("report path must name a file")
	}
	if !filepath.IsAbs(clean) && !filepath.IsLocal(clean) {
		return fmt.Errorf("report path escapes working directory: %s", path)
	}

	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, append(body, '\n'), 0o644)
}
