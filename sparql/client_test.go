package sparql

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/skosprobe/endpoint"
	"github.com/c360/skosprobe/errors"
)

const emptySelect = `{"head":{"vars":["g"]},"results":{"bindings":[]}}`

func testEndpoint(url string) endpoint.Endpoint {
	return endpoint.Endpoint{ID: "test", URL: url}
}

func TestSelect_ParsesBindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "SELECT * WHERE { ?s ?p ?o } LIMIT 1", r.Form.Get("query"))
		assert.Equal(t, "application/sparql-results+json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/sparql-results+json")
		w.Write([]byte(`{
			"head":{"vars":["label"]},
			"results":{"bindings":[
				{"label":{"type":"literal","value":"Chat","xml:lang":"fr"}}
			]}
		}`))
	}))
	defer srv.Close()

	c := NewClient()
	res, err := c.Select(context.Background(), testEndpoint(srv.URL),
		"SELECT * WHERE { ?s ?p ?o } LIMIT 1", DefaultOptions())
	require.NoError(t, err)

	require.Len(t, res.Bindings, 1)
	v, ok := res.First("label")
	require.True(t, ok)
	assert.Equal(t, "Chat", v.Value)
	assert.Equal(t, "fr", v.Lang)
	assert.False(t, res.Empty())
}

func TestSelect_AppliesAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Write([]byte(emptySelect))
	}))
	defer srv.Close()

	ep := endpoint.Endpoint{
		ID:   "auth",
		URL:  srv.URL,
		Auth: &endpoint.Auth{Type: endpoint.AuthBearer, Token: "tok-123"},
	}
	_, err := NewClient().Select(context.Background(), ep, "SELECT 1", DefaultOptions())
	require.NoError(t, err)
}

func TestSelect_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient().Select(context.Background(), testEndpoint(srv.URL), "SELECT 1", Options{MaxRetries: 0})
	te, ok := errors.AsTransport(err)
	require.True(t, ok)
	assert.Equal(t, errors.KindHTTP, te.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, te.Status)
}

func TestSelect_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>definitely not sparql</html>"},
		{"json but not results", `{"message":"hello"}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(test.body))
			}))
			defer srv.Close()

			_, err := NewClient().Select(context.Background(), testEndpoint(srv.URL), "SELECT 1", Options{})
			assert.True(t, errors.IsTransport(err, errors.KindMalformed), "got %v", err)
		})
	}
}

func TestSelect_NetworkErrorRetriesThenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(WithRetryDelay(time.Millisecond))
	start := time.Now()
	_, err := c.Select(context.Background(), testEndpoint(srv.URL), "SELECT 1", Options{MaxRetries: 2})

	assert.True(t, errors.IsTransport(err, errors.KindNetwork), "got %v", err)
	assert.ErrorIs(t, err, errors.ErrEndpointUnreachable)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSelect_HTTPErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(WithRetryDelay(time.Millisecond)).Select(
		context.Background(), testEndpoint(srv.URL), "SELECT 1", Options{MaxRetries: 3})
	assert.True(t, errors.IsTransport(err, errors.KindHTTP))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSelect_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(emptySelect))
	}))
	defer srv.Close()

	c := NewClient(WithRetryDelay(time.Millisecond))
	_, err := c.Select(context.Background(), testEndpoint(srv.URL), "SELECT 1",
		Options{Timeout: 50 * time.Millisecond, MaxRetries: 0})
	assert.True(t, errors.IsTransport(err, errors.KindTimeout), "got %v", err)
	assert.ErrorIs(t, err, errors.ErrRequestTimeout)
}

func TestSelect_CORSParity(t *testing.T) {
	tests := []struct {
		name    string
		allow   string
		blocked bool
	}{
		{"wildcard readable", "*", false},
		{"matching origin readable", "https://ui.example.org", false},
		{"missing header blocked", "", true},
		{"other origin blocked", "https://evil.example.org", true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "https://ui.example.org", r.Header.Get("Origin"))
				if test.allow != "" {
					w.Header().Set("Access-Control-Allow-Origin", test.allow)
				}
				w.Write([]byte(emptySelect))
			}))
			defer srv.Close()

			c := NewClient(WithOrigin("https://ui.example.org"))
			_, err := c.Select(context.Background(), testEndpoint(srv.URL), "SELECT 1", Options{})
			if test.blocked {
				assert.True(t, errors.IsTransport(err, errors.KindCORSBlocked), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSelect_NoOriginSkipsCORSCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Origin"))
		w.Write([]byte(emptySelect))
	}))
	defer srv.Close()

	_, err := NewClient().Select(context.Background(), testEndpoint(srv.URL), "SELECT 1", Options{})
	assert.NoError(t, err)
}

func TestParseResults_AskBoolean(t *testing.T) {
	res, err := parseResults([]byte(`{"head":{},"boolean":true}`), "ep", "send")
	require.NoError(t, err)
	require.NotNil(t, res.Boolean)
	assert.True(t, *res.Boolean)
	assert.True(t, res.Empty())
}

func TestValue_Int(t *testing.T) {
	n, err := Value{Type: "literal", Value: "42"}.Int()
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = Value{Type: "literal", Value: "many"}.Int()
	assert.Error(t, err)
}
