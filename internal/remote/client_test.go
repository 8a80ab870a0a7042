package remote

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/postsync/internal/store"
)

type recorded struct {
	method    string
	path      string
	body      string
	requestID string
	ctype     string
}

func newServer(t *testing.T, status int, body string) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.body = string(raw)
		rec.requestID = r.Header.Get(RequestIDHeader)
		rec.ctype = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/"), rec
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("")
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)

	c = NewClient("http://example.test/", WithTimeout(0))
	assert.Equal(t, "http://example.test", c.BaseURL())
	assert.Zero(t, c.httpClient.Timeout)
}

func TestList(t *testing.T) {
	c, rec := newServer(t, http.StatusOK, `[
		{"id":2,"content":"b","created_at":"2024-05-01T09:31:00Z"},
		{"id":1,"content":"a","created_at":"2024-05-01T09:30:00Z"}
	]`)

	posts, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "2", posts[0].ID.String())
	assert.Equal(t, "a", posts[1].Content)

	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/api/posts", rec.path)
	assert.Empty(t, rec.body)
	assert.NotEmpty(t, rec.requestID)
}

func TestCreate(t *testing.T) {
	c, rec := newServer(t, http.StatusCreated, `{"id":7,"content":"x","created_at":"2024-05-01T09:30:00Z"}`)

	p, err := c.Create(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, store.NumericID(7), p.ID)
	assert.Equal(t, "x", p.Content)

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "application/json", rec.ctype)
	assert.JSONEq(t, `{"content":"x"}`, rec.body)
}

func TestCreate_EmptyContentIsSent(t *testing.T) {
	c, rec := newServer(t, http.StatusCreated, `{"id":8,"content":"","created_at":"2024-05-01T09:30:00Z"}`)

	_, err := c.Create(context.Background(), "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":""}`, rec.body)
}

func TestUpdate(t *testing.T) {
	c, rec := newServer(t, http.StatusOK, `{"id":"p-3","content":"b","created_at":"2024-05-01T09:30:00Z"}`)

	p, err := c.Update(context.Background(), store.StringID("p-3"), "b")
	require.NoError(t, err)
	assert.Equal(t, "b", p.Content)
	assert.Equal(t, http.MethodPut, rec.method)
	assert.JSONEq(t, `{"id":"p-3","content":"b"}`, rec.body)
}

func TestDelete_IgnoresBody(t *testing.T) {
	c, rec := newServer(t, http.StatusOK, `not json at all`)

	require.NoError(t, c.Delete(context.Background(), store.NumericID(2)))
	assert.Equal(t, http.MethodDelete, rec.method)
	assert.JSONEq(t, `{"id":2}`, rec.body)
}

func TestDelete_TypedLeadingZeroID(t *testing.T) {
	c, rec := newServer(t, http.StatusOK, `{"id":"007"}`)

	require.NoError(t, c.Delete(context.Background(), store.ParseID("007")))
	assert.Equal(t, http.MethodDelete, rec.method)
	assert.JSONEq(t, `{"id":"007"}`, rec.body)
}

func TestServerError(t *testing.T) {
	t.Run("envelope", func(t *testing.T) {
		c, _ := newServer(t, http.StatusNotFound, `{"error":{"code":"not_found","message":"post 99 not found"}}`)

		err := c.Delete(context.Background(), store.NumericID(99))
		var se *ServerError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, OpDelete, se.Op)
		assert.Equal(t, http.StatusNotFound, se.StatusCode)
		assert.Equal(t, "post 99 not found", se.Message)
	})

	t.Run("plain body", func(t *testing.T) {
		c, _ := newServer(t, http.StatusBadGateway, "upstream down\n")

		_, err := c.List(context.Background())
		var se *ServerError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "upstream down", se.Message)
		assert.Contains(t, se.Error(), "status 502")
	})
}

func TestMalformedResponse(t *testing.T) {
	cases := map[string]string{
		"not json":       `<html>oops</html>`,
		"missing id":     `{"content":"x","created_at":"2024-05-01T09:30:00Z"}`,
		"bad created_at": `{"id":1,"content":"x","created_at":"soon"}`,
		"wrong shape":    `[1,2,3]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := newServer(t, http.StatusOK, body)

			_, err := c.Create(context.Background(), "x")
			var me *MalformedResponseError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, OpCreate, me.Op)
		})
	}

	t.Run("list of objects without ids", func(t *testing.T) {
		c, _ := newServer(t, http.StatusOK, `[{"content":"x"}]`)
		_, err := c.List(context.Background())
		var me *MalformedResponseError
		assert.ErrorAs(t, err, &me)
	})
}

func TestTransportError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c := NewClient("http://" + addr)
	_, err = c.List(context.Background())

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, OpList, te.Op)
	assert.Equal(t, "http://"+addr+"/api/posts", te.URL)
}

func TestTransportError_ContextCanceled(t *testing.T) {
	c, _ := newServer(t, http.StatusOK, `[]`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.List(ctx)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRequestIDsAreUnique(t *testing.T) {
	c, rec := newServer(t, http.StatusOK, `[]`)
	_, err := c.List(context.Background())
	require.NoError(t, err)
	first := rec.requestID

	_, err = c.List(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, rec.requestID)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage([]byte(`{"error":{"message":"boom"}}`)))
	assert.Equal(t, `{"error":"flat"}`, errorMessage([]byte(`{"error":"flat"}`)))

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, errorMessage(long), 259)
}
