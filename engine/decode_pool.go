package engine

import (
	"context"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/VanDung-dev/ArrowRow-Engine/deserializer"
	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

// DecodeResult is the outcome for one message of DecodeAll.
type DecodeResult struct {
	Index    int
	Rows     []*rowdata.GenericRowData
	Err      error
	Duration time.Duration
}

// DecodePool deserializes independent messages concurrently with one shared
// deserializer.
type DecodePool struct {
	pool         *WorkerPool
	deserializer *deserializer.ArrowRowDataDeserializer
}

func NewDecodePool(d *deserializer.ArrowRowDataDeserializer, workers, queueSize int) *DecodePool {
	return &DecodePool{
		pool:         NewWorkerPool("decode", workers, queueSize),
		deserializer: d,
	}
}

// DecodeAll deserializes every message and returns one result per message in
// submission order. Per-message failures are reported in DecodeResult.Err; the
// returned error is set only when ctx is done or the pool is shut down.
func (p *DecodePool) DecodeAll(ctx context.Context, msgs [][]byte) ([]DecodeResult, error) {
	tasks := make([]*Task, len(msgs))
	for i, msg := range msgs {
		msg := msg
		tasks[i] = NewTask(ctx, strconv.Itoa(i), func(context.Context) (interface{}, error) {
			var out deserializer.ListCollector
			if err := p.deserializer.Deserialize(msg, &out); err != nil {
				return out.Rows(), err
			}
			return out.Rows(), nil
		})
		if err := p.pool.SubmitContext(ctx, tasks[i]); err != nil {
			return nil, err
		}
	}

	results := make([]DecodeResult, len(msgs))
	for i, task := range tasks {
		r, err := task.Wait(ctx)
		if err != nil {
			return nil, err
		}
		rows, _ := r.Data.([]*rowdata.GenericRowData)
		results[i] = DecodeResult{Index: i, Rows: rows, Err: r.Error, Duration: r.Duration}
	}

	logger.WithFields(log.Fields{"messages": len(msgs)}).Debug("decoded messages")
	return results, nil
}

func (p *DecodePool) Stats() PoolStats { return p.pool.GetStats() }

func (p *DecodePool) Shutdown() { p.pool.Shutdown() }
