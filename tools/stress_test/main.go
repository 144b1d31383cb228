// Command stress_test drives an ArrowServer with generated Arrow batches and
// reports throughput and latency.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/VanDung-dev/ArrowRow-Engine/api"
	"github.com/VanDung-dev/ArrowRow-Engine/data"
	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

var logger = log.New()

// StressTestConfig holds configuration for the stress test.
type StressTestConfig struct {
	Address     string
	Concurrency int
	Duration    time.Duration
	AuthToken   string
	Schema      string
	BatchRows   int
	ReportFile  string
}

// StressTestResult holds the results of a stress test.
type StressTestResult struct {
	TotalRequests  int64
	SuccessfulReqs int64
	FailedReqs     int64
	RowsIngested   int64
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	RequestsPerSec float64
	RowsPerSec     float64
}

func main() {
	if err := newCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	var config StressTestConfig
	cmd := &cobra.Command{
		Use:          "stress_test",
		Short:        "Load test an arrowrow TCP ingest server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== ArrowRow TCP Ingest Stress Test ===")
			fmt.Fprintf(out, "Target: %s\n", config.Address)
			fmt.Fprintf(out, "Concurrency: %d workers\n", config.Concurrency)
			fmt.Fprintf(out, "Duration: %v\n", config.Duration)
			fmt.Fprintf(out, "Batch: %d rows of %s\n\n", config.BatchRows, config.Schema)

			payload, err := buildPayload(config.Schema, config.BatchRows)
			if err != nil {
				return err
			}
			result := runStressTest(cmd.Context(), config, payload)
			printResults(out, result)

			if config.ReportFile != "" {
				return saveReport(out, config, result)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&config.Address, "addr", "127.0.0.1:9000", "Arrow server address")
	f.IntVarP(&config.Concurrency, "concurrency", "c", 10, "Number of concurrent connections")
	f.DurationVarP(&config.Duration, "duration", "d", 30*time.Second, "Duration of test")
	f.StringVar(&config.AuthToken, "token", "", "Authentication token (enables the handshake)")
	f.StringVar(&config.Schema, "schema", "ROW<id BIGINT, name STRING, ts TIME(3)>", "Row type of generated batches")
	f.IntVar(&config.BatchRows, "rows", 1000, "Rows per batch")
	f.StringVarP(&config.ReportFile, "output", "o", "", "Output report file (JSON)")
	return cmd
}

// buildPayload generates one IPC stream payload of rows rows for typeString.
func buildPayload(typeString string, rows int) ([]byte, error) {
	rt, err := rowdata.ParseRowType(typeString)
	if err != nil {
		return nil, err
	}
	schema, err := data.ConvertToSchema(rt)
	if err != nil {
		return nil, err
	}
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	for i := 0; i < rows; i++ {
		for j, field := range schema.Fields() {
			if err := appendValue(b.Field(j), field.Type, i); err != nil {
				return nil, errors.Wrapf(err, "field %q", field.Name)
			}
		}
	}
	rec := b.NewRecord()
	defer rec.Release()
	return data.NewIPCWriter(nil).Serialize(rec)
}

func appendValue(b array.Builder, dt arrow.DataType, i int) error {
	switch bb := b.(type) {
	case *array.Int8Builder:
		bb.Append(int8(i))
	case *array.Int16Builder:
		bb.Append(int16(i))
	case *array.Int32Builder:
		bb.Append(int32(i))
	case *array.Int64Builder:
		bb.Append(int64(i))
	case *array.Float32Builder:
		bb.Append(float32(i) / 2)
	case *array.Float64Builder:
		bb.Append(float64(i) / 2)
	case *array.BooleanBuilder:
		bb.Append(i%2 == 0)
	case *array.StringBuilder:
		bb.Append(fmt.Sprintf("row-%d", i))
	case *array.BinaryBuilder:
		bb.Append([]byte{byte(i), byte(i >> 8)})
	case *array.Date32Builder:
		bb.Append(arrow.Date32(i % 20000))
	case *array.Time32Builder:
		bb.Append(arrow.Time32(i % 86400))
	case *array.Time64Builder:
		bb.Append(arrow.Time64(i % 86400))
	case *array.StructBuilder:
		bb.Append(true)
		st := dt.(*arrow.StructType)
		for k, f := range st.Fields() {
			if err := appendValue(bb.FieldBuilder(k), f.Type, i); err != nil {
				return err
			}
		}
	default:
		return errors.Errorf("cannot generate values for %s", dt)
	}
	return nil
}

func runStressTest(ctx context.Context, config StressTestConfig, payload []byte) StressTestResult {
	var (
		totalReqs    int64
		successReqs  int64
		failedReqs   int64
		rows         int64
		totalLatency int64
		minLatency   int64 = 1<<63 - 1
		maxLatency   int64
		wg           sync.WaitGroup
	)

	ctx, cancel := context.WithTimeout(ctx, config.Duration)
	defer cancel()
	startTime := time.Now()

	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w := worker{
				id: workerID, config: config, payload: payload,
				total: &totalReqs, success: &successReqs, failed: &failedReqs, rows: &rows,
				latency: &totalLatency, min: &minLatency, max: &maxLatency,
			}
			w.run(ctx)
		}(i)
	}
	wg.Wait()

	duration := time.Since(startTime)
	total := atomic.LoadInt64(&totalReqs)
	success := atomic.LoadInt64(&successReqs)

	var avgLatency time.Duration
	if success > 0 {
		avgLatency = time.Duration(atomic.LoadInt64(&totalLatency) / success)
	}
	minLat := atomic.LoadInt64(&minLatency)
	if success == 0 {
		minLat = 0
	}

	return StressTestResult{
		TotalRequests:  total,
		SuccessfulReqs: success,
		FailedReqs:     atomic.LoadInt64(&failedReqs),
		RowsIngested:   atomic.LoadInt64(&rows),
		TotalDuration:  duration,
		AvgLatency:     avgLatency,
		MinLatency:     time.Duration(minLat),
		MaxLatency:     time.Duration(atomic.LoadInt64(&maxLatency)),
		RequestsPerSec: float64(total) / duration.Seconds(),
		RowsPerSec:     float64(atomic.LoadInt64(&rows)) / duration.Seconds(),
	}
}

type worker struct {
	id      int
	config  StressTestConfig
	payload []byte

	total, success, failed, rows *int64
	latency, min, max            *int64
}

// run keeps one connection per worker and redials after a transport error.
func (w *worker) run(ctx context.Context) {
	var client *api.Client
	defer func() {
		if client != nil {
			client.Close()
		}
	}()

	for ctx.Err() == nil {
		if client == nil {
			c, err := api.Dial(ctx, w.config.Address, w.config.AuthToken)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				atomic.AddInt64(w.total, 1)
				atomic.AddInt64(w.failed, 1)
				logger.WithError(err).WithField("worker", w.id).Debug("dial failed")
				// Small sleep on error to avoid hammering
				time.Sleep(10 * time.Millisecond)
				continue
			}
			client = c
		}

		start := time.Now()
		resp, err := client.Send(w.payload)
		lat := int64(time.Since(start))
		atomic.AddInt64(w.total, 1)

		if err != nil {
			atomic.AddInt64(w.failed, 1)
			client.Close()
			client = nil
			continue
		}
		if resp.Error != "" {
			atomic.AddInt64(w.failed, 1)
			logger.WithField("worker", w.id).Debug(resp.Error)
			continue
		}

		atomic.AddInt64(w.success, 1)
		atomic.AddInt64(w.rows, int64(resp.Rows))
		atomic.AddInt64(w.latency, lat)
		for {
			old := atomic.LoadInt64(w.min)
			if lat >= old || atomic.CompareAndSwapInt64(w.min, old, lat) {
				break
			}
		}
		for {
			old := atomic.LoadInt64(w.max)
			if lat <= old || atomic.CompareAndSwapInt64(w.max, old, lat) {
				break
			}
		}
	}
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func printResults(out io.Writer, result StressTestResult) {
	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Fprintf(out, "Total Requests:  %d\n", result.TotalRequests)
	fmt.Fprintf(out, "Successful:      %d (%.2f%%)\n", result.SuccessfulReqs, percent(result.SuccessfulReqs, result.TotalRequests))
	fmt.Fprintf(out, "Failed:          %d (%.2f%%)\n", result.FailedReqs, percent(result.FailedReqs, result.TotalRequests))
	fmt.Fprintf(out, "Rows ingested:   %d\n", result.RowsIngested)
	fmt.Fprintf(out, "Requests/sec:    %.2f\n", result.RequestsPerSec)
	fmt.Fprintf(out, "Rows/sec:        %.2f\n", result.RowsPerSec)
	fmt.Fprintf(out, "Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Fprintf(out, "Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Fprintf(out, "Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
}

func saveReport(out io.Writer, config StressTestConfig, result StressTestResult) error {
	report := map[string]interface{}{
		"config": map[string]interface{}{
			"address":     config.Address,
			"concurrency": config.Concurrency,
			"duration":    config.Duration.String(),
			"schema":      config.Schema,
			"batch_rows":  config.BatchRows,
		},
		"results": map[string]interface{}{
			"total_requests":   result.TotalRequests,
			"successful":       result.SuccessfulReqs,
			"failed":           result.FailedReqs,
			"rows_ingested":    result.RowsIngested,
			"requests_per_sec": result.RequestsPerSec,
			"rows_per_sec":     result.RowsPerSec,
			"avg_latency_ms":   float64(result.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms":   float64(result.MinLatency.Microseconds()) / 1000,
			"max_latency_ms":   float64(result.MaxLatency.Microseconds()) / 1000,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(config.ReportFile, b, 0o644); err != nil {
		return errors.Wrap(err, "failed to write report")
	}
	fmt.Fprintf(out, "Report saved to: %s\n", config.ReportFile)
	return nil
}
