package main

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/VanDung-dev/ArrowRow-Engine/api"
	"github.com/VanDung-dev/ArrowRow-Engine/data"
	"github.com/VanDung-dev/ArrowRow-Engine/deserializer"
	"github.com/VanDung-dev/ArrowRow-Engine/engine"
	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

func newDecodeCmd() *cobra.Command {
	var (
		schema  string
		file    string
		framed  bool
		workers int
	)
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode an Arrow IPC file into JSON lines",
		Long: "Reads an Arrow IPC stream and prints one JSON object per row. With --framed the file\n" +
			"is a sequence of length-prefixed IPC messages decoded concurrently.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := rowdata.ParseRowType(schema)
			if err != nil {
				return err
			}
			d, err := deserializer.New(rt, rowdata.InternalTypeInfo(rt))
			if err != nil {
				return err
			}

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			sink := api.NewJSONLinesSink(cmd.OutOrStdout(), rt)
			if framed {
				err = decodeFramed(cmd.Context(), d, f, sink, workers)
			} else {
				err = decodeStream(d, f, sink)
			}
			if flushErr := sink.Flush(); err == nil {
				err = flushErr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "", `Row type of the batches, e.g. "ROW<id BIGINT>"`)
	cmd.Flags().StringVar(&file, "file", "", "Input file")
	cmd.Flags().BoolVar(&framed, "framed", false, "Input is length-prefixed IPC messages")
	cmd.Flags().IntVar(&workers, "workers", 4, "Decode workers for --framed input")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// decodeStream reads every record of one IPC stream.
func decodeStream(d *deserializer.ArrowRowDataDeserializer, r io.Reader, sink api.RowSink) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	records, err := data.NewIPCReader(nil).WithSchema(d.ArrowSchema()).DecodeAll(content)
	if err != nil {
		return &deserializer.DeserializationError{Cause: err}
	}
	defer func() {
		for _, rec := range records {
			rec.Release()
		}
	}()
	for _, rec := range records {
		if err := d.DeserializeRecord(rec, sink); err != nil {
			return err
		}
	}
	return nil
}

// decodeFramed splits r into messages and decodes them on a DecodePool.
// Results are written in input order; failed messages are logged and skipped.
func decodeFramed(ctx context.Context, d *deserializer.ArrowRowDataDeserializer, r io.Reader, sink api.RowSink, workers int) error {
	var msgs [][]byte
	br := bufio.NewReader(r)
	for {
		msg, err := api.ReadMessage(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "frame %d", len(msgs))
		}
		msgs = append(msgs, msg)
	}

	pool := engine.NewDecodePool(d, workers, len(msgs))
	defer pool.Shutdown()

	results, err := pool.DecodeAll(ctx, msgs)
	if err != nil {
		return err
	}

	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
			logger.WithError(res.Err).WithField("frame", res.Index).Warn("skipping frame")
			continue
		}
		for _, row := range res.Rows {
			if err := sink.Collect(row); err != nil {
				return err
			}
		}
	}
	stats := pool.Stats()
	logger.WithFields(log.Fields{
		"frames":    len(msgs),
		"failed":    failed,
		"completed": stats.Completed,
	}).Info("decode finished")
	if failed > 0 {
		return errors.Errorf("%d of %d frames failed", failed, len(msgs))
	}
	return nil
}
