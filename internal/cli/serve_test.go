package cli

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridsync/internal/catalog"
	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/remote"
)

func TestServeSeedsCatalogAndStops(t *testing.T) {
	root, _ := testRoot(t, "text")
	root.cfg.APIKey = "secret"

	ready := make(chan string, 1)
	opts := &ServeOptions{
		RootOptions: root,
		Listen:      "127.0.0.1:0",
		Database:    filepath.Join(t.TempDir(), "serve.db"),
		SeedCatalog: true,
		Ready:       func(addr string) { ready <- addr },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := NewServeCommand(root)
	cmd.SetContext(ctx)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	done := make(chan error, 1)
	go func() { done <- runServe(opts, cmd) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}

	c, err := remote.NewClient("http://"+addr, "secret")
	require.NoError(t, err)

	records, err := c.Fetch(ctx, catalog.RemoteTarget)
	require.NoError(t, err)
	assert.Len(t, records, 4)

	resp, err := c.Bulk(ctx, ir.BatchRequest{
		Target:     "ports",
		Intent:     ir.IntentUpsert,
		CallerID:   "tester",
		UniqueKeys: []string{"port_code"},
		Rows:       []ir.RequestRow{{Fields: ir.IRObject{"port_code": ir.IRString("NLRTM")}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, ir.LabelInsert, resp.Data[0].Operation)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeBadDatabase(t *testing.T) {
	root, _ := testRoot(t, "text")
	opts := &ServeOptions{
		RootOptions: root,
		Listen:      "127.0.0.1:0",
		Database:    filepath.Join(t.TempDir(), "missing-dir", "serve.db"),
	}
	cmd := NewServeCommand(root)
	cmd.SetContext(context.Background())
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := runServe(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
