package location

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPAPILocator_Success(t *testing.T) {
	var gotFields, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFields = r.URL.Query().Get("fields")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"status":"success","lat":52.52,"lon":13.405,"regionName":"Berlin","country":"Germany"}`))
	}))
	defer server.Close()

	place, err := NewIPAPILocator(server.URL, "", time.Second).Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Place{AdministrativeArea: "Berlin", Country: "Germany", Latitude: 52.52, Longitude: 13.405}, place)
	assert.Contains(t, gotFields, "lat")
	assert.Equal(t, DefaultUserAgent, gotUA)
}

func TestIPAPILocator_Fail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
	}))
	defer server.Close()

	_, err := NewIPAPILocator(server.URL, "", time.Second).Locate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved range")
}

func TestIPAPILocator_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewIPAPILocator(server.URL, "", time.Second).Locate(context.Background())
	assert.ErrorContains(t, err, "HTTP 429")
}

func TestNominatimSearcher_Search(t *testing.T) {
	var query map[string]string
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query = map[string]string{"q": q.Get("q"), "format": q.Get("format"), "addressdetails": q.Get("addressdetails"), "limit": q.Get("limit")}
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`[
			{"lat":"51.5237","lon":"-0.1585","address":{"road":"Baker Street","state":"England","country":"United Kingdom"}},
			{"lat":"not-a-number","lon":"0","address":{"country":"Nowhere"}},
			{"lat":"48.1","lon":"11.6","address":{"state":"Bavaria","country":"Germany"}}
		]`))
	}))
	defer server.Close()

	places, err := NewNominatimSearcher(server.URL, "test-agent/1.0", 3, time.Second).Search(context.Background(), "baker")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"q": "baker", "format": "jsonv2", "addressdetails": "1", "limit": "3"}, query)
	assert.Equal(t, "test-agent/1.0", gotUA)
	assert.Equal(t, []Place{
		{Street: "Baker Street", AdministrativeArea: "England", Country: "United Kingdom", Latitude: 51.5237, Longitude: -0.1585},
		{AdministrativeArea: "Bavaria", Country: "Germany", Latitude: 48.1, Longitude: 11.6},
	}, places)
}

func TestNominatimSearcher_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"x"}`))
	}))
	defer server.Close()

	_, err := NewNominatimSearcher(server.URL, "", 0, time.Second).Search(context.Background(), "x")
	assert.ErrorContains(t, err, "parse response")
}

// TestService_WithNominatim wires the searcher into the Service end to end.
func TestService_WithNominatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := NewService(StaticLocator{}, NewNominatimSearcher(server.URL, "", 5, time.Second), true, nil)
	got := s.Suggestions(context.Background(), "paris")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
