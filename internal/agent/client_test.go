package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct{}

func (staticTokens) Token(ctx context.Context) (string, error) { return "test-token", nil }

func newTestClient(url string) *Client {
	return NewClient(url, staticTokens{}, 5*time.Second)
}

func decodeEnvelope(t *testing.T, r *http.Request) queryEnvelope {
	t.Helper()
	var env queryEnvelope
	require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
	return env
}

func TestClient_CreateSession(t *testing.T) {
	var gotEnvelope queryEnvelope
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/engine:query", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotEnvelope = decodeEnvelope(t, r)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"output": map[string]interface{}{
				"id":             "remote-1",
				"userId":         "user-1",
				"appName":        "engine",
				"lastUpdateTime": 1756339200.5,
				"state":          map[string]interface{}{"k": "v"},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL + "/engine")
	sess, err := c.CreateSession(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "async_create_session", gotEnvelope.ClassMethod)
	assert.Equal(t, "user-1", gotEnvelope.Input["user_id"])

	assert.Equal(t, "remote-1", sess.ID)
	assert.Equal(t, 1756339200.5, sess.LastUpdateTime)
	assert.Equal(t, "v", sess.State["k"])
}

func TestClient_ListSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env := decodeEnvelope(t, r)
		assert.Equal(t, "async_list_sessions", env.ClassMethod)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"output": map[string]interface{}{
				"sessions": []map[string]interface{}{
					{"id": "a"}, {"id": "b"},
				},
			},
		})
	}))
	defer srv.Close()

	sessions, err := newTestClient(srv.URL).ListSessions(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "a", sessions[0].ID)
}

func TestClient_DeleteSession_SendsSessionID(t *testing.T) {
	var gotEnvelope queryEnvelope

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEnvelope = decodeEnvelope(t, r)
		json.NewEncoder(w).Encode(map[string]interface{}{"output": nil})
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).DeleteSession(context.Background(), "user-1", "sess-1")
	require.NoError(t, err)

	assert.Equal(t, "async_delete_session", gotEnvelope.ClassMethod)
	assert.Equal(t, "user-1", gotEnvelope.Input["user_id"])
	assert.Equal(t, "sess-1", gotEnvelope.Input["session_id"])
}

func TestClient_QueryError_CarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": "permission denied"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetSession(context.Background(), "user-1", "sess-1")
	require.Error(t, err)

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusForbidden, remoteErr.StatusCode)
	assert.Contains(t, remoteErr.Body, "permission denied")
	assert.Equal(t, "async_get_session", remoteErr.Op)
}

func TestClient_StreamQuery_EmitsExactlyOneEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":streamQuery")
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))

		env := decodeEnvelope(t, r)
		assert.Equal(t, "async_stream_query", env.ClassMethod)
		assert.Equal(t, "hello", env.Input["message"])

		flusher := w.(http.Flusher)
		w.Write([]byte(`{"content": {"parts": [{"text": "hi there"}], "role": "model"},`))
		flusher.Flush()
		w.Write([]byte(` "author": "orchestrator_agent", "finish_reason": "STOP", "timestamp": 1756339200.5}`))
		flusher.Flush()
	}))
	defer srv.Close()

	var events []Event
	err := newTestClient(srv.URL).StreamQuery(context.Background(), "user-1", "sess-1", "hello",
		func(ev Event) { events = append(events, ev) })
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "hi there", events[0].Content)
	assert.Equal(t, "model", events[0].Role)
	assert.Equal(t, "orchestrator_agent", events[0].Author)
	assert.Equal(t, "STOP", events[0].FinishReason)
	assert.Equal(t, int64(1756339200), events[0].UnixTimestamp())
}

func TestClient_StreamQuery_ParseAtEndOfStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No terminal marker anywhere in the body
		w.Write([]byte(`{"content": "plain answer"}`))
	}))
	defer srv.Close()

	var events []Event
	err := newTestClient(srv.URL).StreamQuery(context.Background(), "user-1", "sess-1", "hello",
		func(ev Event) { events = append(events, ev) })
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "plain answer", events[0].Content)
}

func TestClient_StreamQuery_DecodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`this is not json`))
	}))
	defer srv.Close()

	emitted := 0
	err := newTestClient(srv.URL).StreamQuery(context.Background(), "user-1", "sess-1", "hello",
		func(Event) { emitted++ })

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "this is not json", decodeErr.Raw)
	assert.Zero(t, emitted)
}

func TestClient_StreamQuery_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).StreamQuery(context.Background(), "user-1", "sess-1", "hello",
		func(Event) { t.Fatal("no event expected") })

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusBadGateway, remoteErr.StatusCode)
	assert.Equal(t, "upstream exploded", remoteErr.Body)
}
