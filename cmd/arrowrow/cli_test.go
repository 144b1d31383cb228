package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/ArrowRow-Engine/api"
	"github.com/VanDung-dev/ArrowRow-Engine/config"
	"github.com/VanDung-dev/ArrowRow-Engine/data"
	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

const testSchema = "ROW<id BIGINT, name STRING>"

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd := newRootCmd()
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func testRecords(t *testing.T) (*arrow.Schema, []arrow.Record) {
	t.Helper()
	rt, err := rowdata.ParseRowType(testSchema)
	require.NoError(t, err)
	schema, err := data.ConvertToSchema(rt)
	require.NoError(t, err)

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	var recs []arrow.Record
	for _, batch := range [][]int64{{1, 2}, {3}} {
		for _, id := range batch {
			b.Field(0).(*array.Int64Builder).Append(id)
			b.Field(1).(*array.StringBuilder).Append("n" + string(rune('0'+id)))
		}
		recs = append(recs, b.NewRecord())
	}
	t.Cleanup(func() {
		for _, r := range recs {
			r.Release()
		}
	})
	return schema, recs
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "arrowrow version "+api.Version+"\n", out)
}

func TestSchemaCmd(t *testing.T) {
	ipcPath := filepath.Join(t.TempDir(), "schema.arrow")
	out, err := runCmd(t, "schema", "--type", "ROW<id BIGINT NOT NULL, ts TIME(6)>", "--ipc-out", ipcPath)
	require.NoError(t, err)
	assert.Contains(t, out, "id: type=int64")
	assert.Contains(t, out, "ts: type=time64[us], nullable")

	out, err = runCmd(t, "schema", "--from-ipc", ipcPath)
	require.NoError(t, err)
	assert.Equal(t, "ROW<id BIGINT NOT NULL, ts TIME(6)>\n", out)

	_, err = runCmd(t, "schema")
	assert.Error(t, err)
	_, err = runCmd(t, "schema", "--type", "ROW<d DECIMAL(10, 2)>")
	assert.Error(t, err)
}

func TestDecodeCmdStream(t *testing.T) {
	_, recs := testRecords(t)
	payload, err := data.NewIPCWriter(nil).SerializeAll(recs)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "batches.arrow")
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	out, err := runCmd(t, "decode", "--schema", testSchema, "--file", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"id":1,"name":"n1"}`, lines[0])
	assert.JSONEq(t, `{"id":3,"name":"n3"}`, lines[2])

	_, err = runCmd(t, "decode", "--schema", "ROW<x DOUBLE>", "--file", path)
	assert.Error(t, err)
}

func TestDecodeCmdFramed(t *testing.T) {
	_, recs := testRecords(t)
	var buf bytes.Buffer
	w := data.NewIPCWriter(nil)
	for _, rec := range recs {
		payload, err := w.Serialize(rec)
		require.NoError(t, err)
		require.NoError(t, api.WriteMessage(&buf, payload))
	}
	path := filepath.Join(t.TempDir(), "frames.bin")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	out, err := runCmd(t, "decode", "--schema", testSchema, "--file", path, "--framed", "--workers", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"id":2,"name":"n2"}`, lines[1])

	// a bad frame is skipped, the good ones still print
	require.NoError(t, api.WriteMessage(&buf, []byte("garbage")))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	out, err = runCmd(t, "decode", "--schema", testSchema, "--file", path, "--framed")
	assert.Error(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)
}

func TestDecodeCmdMissingFlags(t *testing.T) {
	_, err := runCmd(t, "decode", "--file", "x")
	assert.Error(t, err)
}

func TestBadLogLevel(t *testing.T) {
	_, err := runCmd(t, "--log-level", "loud", "version")
	assert.Error(t, err)
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestServe(t *testing.T) {
	_, recs := testRecords(t)

	cfg := config.Default()
	cfg.Schema = testSchema
	cfg.TCP.Address = freeAddr(t)
	cfg.Flight.Address = ""
	cfg.Metrics.Address = ""
	require.NoError(t, cfg.Validate())

	var out safeBuffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, &out, prometheus.NewRegistry()) }()

	var client *api.Client
	require.Eventually(t, func() bool {
		c, err := api.Dial(context.Background(), cfg.TCP.Address, "")
		if err != nil {
			return false
		}
		client = c
		return true
	}, 5*time.Second, 20*time.Millisecond)
	defer client.Close()

	payload, err := data.NewIPCWriter(nil).Serialize(recs[0])
	require.NoError(t, err)
	resp, err := client.Send(payload)
	require.NoError(t, err)
	assert.Equal(t, api.BatchResponse{Rows: 2}, resp)
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
