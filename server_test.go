package infinispan

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/infinispan/infinispan-subsystem/config"
	"github.com/infinispan/infinispan-subsystem/internal/model"
	"github.com/infinispan/infinispan-subsystem/internal/naming"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

const document = `<?xml version="1.0" encoding="UTF-8"?>
<subsystem xmlns="urn:infinispan:server:core:9.4">
    <cache-container name="local" default-cache="users">
        <local-cache name="users" start="EAGER"/>
        <local-cache name="sessions"/>
    </cache-container>
</subsystem>
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{Server: config.Server{NodeName: "node1", BaseDir: t.TempDir()}}
	cfg.AdjustConfig()
	s, err := New(context.Background(), cfg, zerolog.Nop(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// TestServer_Boot verifies a document boots the caches it declares and is written back.
func TestServer_Boot(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.ErrorIs(t, s.WriteXML(&out), ErrNotBooted)

	require.NoError(t, s.Boot(ctx, strings.NewReader(document)))

	_, err := s.Naming().Lookup(naming.CacheName("", "local", "users"))
	require.NoError(t, err)

	addr := schema.SubsystemAddress.Append(
		model.Element(schema.CacheContainer, "local"),
		model.Element(schema.LocalCache, "users"),
	)
	res := s.Execute(ctx, model.NewOperation(model.OpReadAttribute, addr).With(schema.Name, model.StringValue("cache-status")))
	require.False(t, res.Failed(), res.FailureDescription)
	require.Equal(t, "RUNNING", res.Result.AsString())

	require.NoError(t, s.WriteXML(&out))
	require.Contains(t, out.String(), `<local-cache name="users" start="EAGER">`)
	require.Contains(t, out.String(), `<local-cache name="sessions">`)
	require.False(t, s.ReloadRequired())
}

// TestServer_BootInvalidDocument verifies a document that fails to parse boots nothing.
func TestServer_BootInvalidDocument(t *testing.T) {
	s := newTestServer(t)
	err := s.Boot(context.Background(), strings.NewReader(`<subsystem xmlns="urn:infinispan:server:core:9.4"><bogus/></subsystem>`))
	require.Error(t, err)

	var out bytes.Buffer
	require.ErrorIs(t, s.WriteXML(&out), ErrNotBooted)
}

// TestServer_BootFileMissing verifies a missing document is reported with its path.
func TestServer_BootFileMissing(t *testing.T) {
	s := newTestServer(t)
	err := s.BootFile(context.Background(), "does-not-exist.xml")
	require.ErrorContains(t, err, "open subsystem document")
}
