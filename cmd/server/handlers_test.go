package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gurram46/Artha-Agent-sub001/internal/marketdata"
	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

func init() { gin.SetMode(gin.TestMode) }

type stubUpstream struct {
	quotes    []provider.Quote
	listErr   error
	detailErr error
	seriesErr error
}

func (s stubUpstream) ListTop(context.Context) ([]provider.Quote, error) {
	return s.quotes, s.listErr
}

func (s stubUpstream) GetDetail(_ context.Context, id string) (provider.Quote, error) {
	if s.detailErr != nil {
		return provider.Quote{}, s.detailErr
	}
	return provider.Quote{ID: strings.ToUpper(id), Price: decimal.NewFromInt(42)}, nil
}

func (s stubUpstream) GetSeries(context.Context, string, provider.Window) ([]provider.SeriesPoint, error) {
	if s.seriesErr != nil {
		return nil, s.seriesErr
	}
	return []provider.SeriesPoint{{Time: time.Unix(1_700_000_000, 0).UTC(), Close: decimal.NewFromInt(7)}}, nil
}

func newTestRouter(t *testing.T, up provider.Upstream) *gin.Engine {
	t.Helper()
	svc := marketdata.New(up, marketdata.DefaultConfig())
	t.Cleanup(svc.Shutdown)
	return newRouter(svc, nil)
}

func serve(r http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func sampleQuotes() []provider.Quote {
	return []provider.Quote{
		{ID: "AAA", Name: "Alpha", Price: decimal.NewFromInt(10)},
		{ID: "BBB", Name: "Beta", Price: decimal.NewFromInt(20)},
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, stubUpstream{})

	rr := serve(r, "/healthz")

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestTopQuotes(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, stubUpstream{quotes: sampleQuotes()})

	rr := serve(r, "/api/v1/quotes")

	require.Equal(t, http.StatusOK, rr.Code)
	var snap provider.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	require.Len(t, snap.Quotes, 2)
	require.Equal(t, provider.SourceFetch, snap.Source)
	require.False(t, snap.Degraded)
}

func TestTopQuotesDegradedWhenUpstreamFails(t *testing.T) {
	t.Parallel()
	up := stubUpstream{listErr: provider.NewError(provider.KindUpstreamUnavailable, "list_top", "", errors.New("boom"))}
	r := newTestRouter(t, up)

	rr := serve(r, "/api/v1/quotes")

	require.Equal(t, http.StatusOK, rr.Code)
	var snap provider.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	require.Empty(t, snap.Quotes)
	require.True(t, snap.Degraded)
	require.Equal(t, provider.SourceEmpty, snap.Source)
}

func TestDetail(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, stubUpstream{})

	rr := serve(r, "/api/v1/quotes/aaa")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp detailResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Quote)
	require.Equal(t, "AAA", resp.Quote.ID)
}

func TestDetailNotFound(t *testing.T) {
	t.Parallel()
	up := stubUpstream{detailErr: provider.NewError(provider.KindNoDataAvailable, "get_detail", "", errors.New("404"))}
	r := newTestRouter(t, up)

	rr := serve(r, "/api/v1/quotes/zzz")

	require.Equal(t, http.StatusNotFound, rr.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "no_data_available", resp.Kind)
	require.Equal(t, "zzz", resp.ID)
}

func TestSeries(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, stubUpstream{})

	rr := serve(r, "/api/v1/quotes/aaa/series?window=1y")

	require.Equal(t, http.StatusOK, rr.Code)
	var series provider.QuoteSeries
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &series))
	require.Equal(t, provider.Window1Y, series.Window)
	require.Len(t, series.Points, 1)
}

func TestSeriesErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		target   string
		err      error
		wantCode int
		wantKind string
	}{
		{name: "bad window", target: "/api/v1/quotes/aaa/series?window=2Q", wantCode: http.StatusBadRequest},
		{
			name:     "rate limited",
			target:   "/api/v1/quotes/aaa/series",
			err:      provider.NewError(provider.KindRateLimited, "get_series", "", errors.New("429")),
			wantCode: http.StatusTooManyRequests,
			wantKind: "rate_limited",
		},
		{
			name:     "timeout",
			target:   "/api/v1/quotes/aaa/series",
			err:      provider.NewError(provider.KindTimeout, "get_series", "", context.DeadlineExceeded),
			wantCode: http.StatusGatewayTimeout,
			wantKind: "timeout",
		},
		{
			name:     "unavailable",
			target:   "/api/v1/quotes/aaa/series",
			err:      provider.NewError(provider.KindUpstreamUnavailable, "get_series", "", errors.New("502")),
			wantCode: http.StatusBadGateway,
			wantKind: "upstream_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// Arrange
			r := newTestRouter(t, stubUpstream{seriesErr: tt.err})

			// Act
			rr := serve(r, tt.target)

			// Assert
			require.Equal(t, tt.wantCode, rr.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			require.Equal(t, tt.wantKind, resp.Kind)
			require.Equal(t, "aaa", resp.ID)
		})
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, stubUpstream{quotes: sampleQuotes()})
	serve(r, "/api/v1/quotes")

	rr := serve(r, "/api/v1/status")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Version string           `json:"version"`
		Stats   marketdata.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Version)
	require.Equal(t, marketdata.StateIdle, resp.Stats.State)
	require.EqualValues(t, 1, resp.Stats.UpstreamCalls)
	require.Equal(t, 2, resp.Stats.CachedQuotes)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, stubUpstream{})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/v1/quotes", nil))

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestGzip(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, stubUpstream{quotes: sampleQuotes()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quotes", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))
	require.Contains(t, rr.Header().Values("Vary"), "Accept-Encoding")

	zr, err := gzip.NewReader(rr.Body)
	require.NoError(t, err)
	var snap provider.Snapshot
	require.NoError(t, json.NewDecoder(zr).Decode(&snap))
	require.Len(t, snap.Quotes, 2)
}

func TestStreamDeliversSnapshots(t *testing.T) {
	t.Parallel()
	// Arrange
	svc := marketdata.New(stubUpstream{quotes: sampleQuotes()}, marketdata.DefaultConfig())
	t.Cleanup(svc.Shutdown)
	ts := httptest.NewServer(newRouter(svc, nil))
	t.Cleanup(ts.Close)

	// Act
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.DialContext(t.Context(), url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Assert
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg streamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "snapshot", msg.Type)
	require.Len(t, msg.Data.Quotes, 2)
	require.Len(t, svc.Subscribers(), 1)
	require.True(t, strings.HasPrefix(svc.Subscribers()[0], "ws-"))

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	require.Eventually(t, func() bool { return len(svc.Subscribers()) == 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestStreamClientDropsOldestWhenFull(t *testing.T) {
	t.Parallel()
	sc := &streamClient{send: make(chan provider.Snapshot, 2)}

	for i := range 5 {
		sc.OnSnapshot(provider.Snapshot{FetchedAt: time.Unix(int64(i), 0)})
	}

	require.Len(t, sc.send, 2)
	require.Equal(t, int64(3), (<-sc.send).FetchedAt.Unix())
	require.Equal(t, int64(4), (<-sc.send).FetchedAt.Unix())
}
