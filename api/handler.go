package api

import (
	"context"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/VanDung-dev/ArrowRow-Engine/deserializer"
	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

var logger = log.New()

// SetLogLevel sets the level of the package logger.
func SetLogLevel(level log.Level) {
	logger.SetLevel(level)
}

// BatchResponse is the reply to every ingested batch.
type BatchResponse struct {
	Rows  int    `json:"rows"`
	Error string `json:"error,omitempty"`
}

// ArrowHandler deserializes ingested batches into a RowSink.
type ArrowHandler struct {
	deserializer *deserializer.ArrowRowDataDeserializer
	sink         RowSink
	metrics      *Metrics
}

// NewArrowHandler creates a handler. metrics may be nil.
func NewArrowHandler(d *deserializer.ArrowRowDataDeserializer, sink RowSink, metrics *Metrics) *ArrowHandler {
	if sink == nil {
		sink = DiscardSink
	}
	return &ArrowHandler{deserializer: d, sink: sink, metrics: metrics}
}

// ProcessBatch deserializes one IPC stream payload. Failures are reported in
// the response, not as an error.
func (h *ArrowHandler) ProcessBatch(ctx context.Context, data []byte) BatchResponse {
	return h.ProcessMessage(ctx, "tcp", data)
}

// ProcessRecord handles an already decoded record.
func (h *ArrowHandler) ProcessRecord(ctx context.Context, transport string, rec arrow.Record) BatchResponse {
	return h.run(ctx, transport, func(out deserializer.Collector) error {
		return h.deserializer.DeserializeRecord(rec, out)
	})
}

// ProcessMessage is ProcessBatch for a named transport.
func (h *ArrowHandler) ProcessMessage(ctx context.Context, transport string, data []byte) BatchResponse {
	return h.run(ctx, transport, func(out deserializer.Collector) error {
		return h.deserializer.Deserialize(data, out)
	})
}

func (h *ArrowHandler) run(ctx context.Context, transport string, fn func(deserializer.Collector) error) BatchResponse {
	start := time.Now()
	var rows int
	counting := deserializer.CollectorFunc(func(row *rowdata.GenericRowData) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows++
		return h.sink.Collect(row)
	})

	err := fn(counting)
	if flushErr := h.sink.Flush(); err == nil {
		err = flushErr
	}

	resp := BatchResponse{Rows: rows}
	status := "ok"
	if err != nil {
		resp.Error = err.Error()
		status = "error"
		logger.WithError(err).WithFields(log.Fields{"transport": transport, "rows": rows}).Error("batch failed")
	} else {
		logger.WithFields(log.Fields{"transport": transport, "rows": rows}).Debug("batch ingested")
	}
	if h.metrics != nil {
		h.metrics.RecordRequest(transport, status, time.Since(start))
	}
	return resp
}

// Encode marshals the response for the wire.
func (r BatchResponse) Encode() []byte {
	b, err := json.Marshal(r)
	if err != nil {
		// BatchResponse has only string and int fields
		panic(err)
	}
	return b
}

// DecodeBatchResponse parses a reply frame.
func DecodeBatchResponse(b []byte) (BatchResponse, error) {
	var r BatchResponse
	err := json.Unmarshal(b, &r)
	return r, err
}
