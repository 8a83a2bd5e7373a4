package rpc

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/crashmesh/internal/meshdata"
	"github.com/dreamware/crashmesh/internal/meshlog"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("unused", meshlog.Nop())
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)
	return s, srv
}

func TestHTTPStub_QueryRoundTrip(t *testing.T) {
	s, srv := newTestServer(t)
	var gotQuery meshdata.Query
	s.OnQuery(func(_ context.Context, q meshdata.Query) meshdata.QueryResult {
		gotQuery = q
		return meshdata.QueryResult{
			QueryID: q.ID,
			Success: true,
			Message: "ok",
			Entries: []meshdata.DataEntry{{Key: "k1", Value: meshdata.NewStringValue("v1")}},
		}
	})

	addr := strings.TrimPrefix(srv.URL, "http://")
	stub := NewHTTPStub("peer", addr)

	result, err := stub.Query(context.Background(), meshdata.Query{ID: "q1", Verb: "get_all"})
	require.NoError(t, err)
	assert.Equal(t, "q1", gotQuery.ID)
	assert.True(t, result.Success)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "k1", result.Entries[0].Key)
	assert.Equal(t, "v1", result.Entries[0].Value.Str)
}

func TestHTTPStub_SendDelivers(t *testing.T) {
	s, srv := newTestServer(t)
	var gotSrc, gotDst string
	var gotData []byte
	s.OnData(func(_ context.Context, src, dst string, data []byte) {
		gotSrc, gotDst, gotData = src, dst, data
	})

	addr := strings.TrimPrefix(srv.URL, "http://")
	stub := NewHTTPStub("peer", addr)

	err := stub.Send(context.Background(), "A", "B", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "A", gotSrc)
	assert.Equal(t, "B", gotDst)
	assert.Equal(t, []byte("payload"), gotData)
}

func TestHTTPStub_BreakerTripsOnConsecutiveFailures(t *testing.T) {
	stub := NewHTTPStub("ghost", "127.0.0.1:1") // nothing listens here

	for i := 0; i < 3; i++ {
		_, err := stub.Query(context.Background(), meshdata.Query{ID: "q", Verb: "get_all"})
		assert.Error(t, err)
	}

	assert.False(t, stub.IsConnected(), "breaker should open after consecutive failures")
}
