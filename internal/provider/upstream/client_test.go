package upstream_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
	"github.com/gurram46/Artha-Agent-sub001/internal/provider/upstream"
)

func respond(t *testing.T, status int, body any) *http.Response {
	t.Helper()

	buffer := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(buffer).Encode(body))

	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(buffer),
	}
}

func ok(data any) map[string]any {
	return map[string]any{"success": true, "data": data}
}

func TestWithBaseURL(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock http client
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	baseURL := "http://localhost:8080"

	// Assert: the request goes to the configured base url
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Truef(t, strings.HasPrefix(req.URL.String(), baseURL+"/v1/quotes/top"), "unexpected url: %s", req.URL.String())
			return respond(t, http.StatusOK, ok([]map[string]any{{"symbol": "AAA", "price": 1}})), nil
		}).
		Times(1)

	client := upstream.New(upstream.WithBaseURL(baseURL), upstream.WithHTTPClient(httpClient))

	// Act
	_, err := client.ListTop(t.Context())

	// Assert
	require.NoError(t, err)
}

func TestWithHeaderAndAPIKey(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
			require.Equal(t, "bar", req.Header.Get("X-Foo"))
			require.Equal(t, "application/json", req.Header.Get("Accept"))
			return respond(t, http.StatusOK, ok([]map[string]any{{"symbol": "AAA"}})), nil
		}).
		Times(1)

	client := upstream.New(
		upstream.WithHTTPClient(httpClient),
		upstream.WithAPIKey("secret"),
		upstream.WithHeader(http.Header{"X-Foo": []string{"bar"}}),
	)

	// Act
	_, err := client.ListTop(t.Context())

	// Assert
	require.NoError(t, err)
}

func TestListTop(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(respond(t, http.StatusOK, ok([]map[string]any{
			{"symbol": "RELIANCE", "name": "Reliance", "price": "2950.15", "pe": 27.4, "updatedAt": 1_700_000_000_000},
			{"symbol": " ", "name": "dropped"},
			{"symbol": "TCS", "name": "TCS", "price": 4100, "pe": nil, "updatedAt": 1_700_000_000},
		})), nil).
		Times(1)

	client := upstream.New(upstream.WithHTTPClient(httpClient))

	// Act
	quotes, err := client.ListTop(t.Context())

	// Assert: provider order is kept and blank symbols are skipped
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	require.Equal(t, "RELIANCE", quotes[0].ID)
	require.Equal(t, "2950.15", quotes[0].Price.String())
	require.True(t, quotes[0].PE.Valid)
	require.Equal(t, int64(1_700_000_000), quotes[0].UpdatedAt.Unix())
	require.Equal(t, "TCS", quotes[1].ID)
	require.False(t, quotes[1].PE.Valid)
	require.Equal(t, int64(1_700_000_000), quotes[1].UpdatedAt.Unix())
}

func TestListTopErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  func(t *testing.T) (*http.Response, error)
		want error
	}{
		{
			name: "http 429",
			res: func(t *testing.T) (*http.Response, error) {
				return respond(t, http.StatusTooManyRequests, map[string]any{}), nil
			},
			want: provider.ErrRateLimited,
		},
		{
			name: "envelope rate limit code",
			res: func(t *testing.T) (*http.Response, error) {
				return respond(t, http.StatusOK, map[string]any{"success": false, "errorCode": "RATE_LIMITED", "errorMsg": "slow down"}), nil
			},
			want: provider.ErrRateLimited,
		},
		{
			name: "envelope numeric 429",
			res: func(t *testing.T) (*http.Response, error) {
				return respond(t, http.StatusOK, map[string]any{"success": false, "errorCode": 429}), nil
			},
			want: provider.ErrRateLimited,
		},
		{
			name: "server error",
			res: func(t *testing.T) (*http.Response, error) {
				return respond(t, http.StatusBadGateway, map[string]any{}), nil
			},
			want: provider.ErrUpstreamUnavailable,
		},
		{
			name: "envelope failure",
			res: func(t *testing.T) (*http.Response, error) {
				return respond(t, http.StatusOK, map[string]any{"success": false, "errorCode": "E500", "errorMsg": "boom"}), nil
			},
			want: provider.ErrUpstreamUnavailable,
		},
		{
			name: "malformed body",
			res: func(t *testing.T) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("<html>"))}, nil
			},
			want: provider.ErrUpstreamUnavailable,
		},
		{
			name: "empty data",
			res: func(t *testing.T) (*http.Response, error) {
				return respond(t, http.StatusOK, ok([]any{})), nil
			},
			want: provider.ErrNoDataAvailable,
		},
		{
			name: "null data",
			res: func(t *testing.T) (*http.Response, error) {
				return respond(t, http.StatusOK, ok(nil)), nil
			},
			want: provider.ErrNoDataAvailable,
		},
		{
			name: "transport deadline",
			res: func(t *testing.T) (*http.Response, error) {
				return nil, context.DeadlineExceeded
			},
			want: provider.ErrTimeout,
		},
		{
			name: "transport failure",
			res: func(t *testing.T) (*http.Response, error) {
				return nil, errors.New("connection refused")
			},
			want: provider.ErrUpstreamUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().
				Do(gomock.Any()).
				DoAndReturn(func(*http.Request) (*http.Response, error) { return tt.res(t) }).
				Times(1)

			client := upstream.New(upstream.WithHTTPClient(httpClient))

			// Act
			quotes, err := client.ListTop(t.Context())

			// Assert
			require.Nil(t, quotes)
			require.ErrorIs(t, err, tt.want)

			var fe *provider.FetchError
			require.ErrorAs(t, err, &fe)
			require.Equal(t, "list_top", fe.Op)
		})
	}
}

func TestGetDetail(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/v1/quotes/INFY", req.URL.Path)
			return respond(t, http.StatusOK, ok(map[string]any{"symbol": "INFY", "name": "Infosys", "price": "1500.5"})), nil
		}).
		Times(1)

	client := upstream.New(upstream.WithHTTPClient(httpClient))

	// Act
	quote, err := client.GetDetail(t.Context(), " INFY ")

	// Assert
	require.NoError(t, err)
	require.Equal(t, "INFY", quote.ID)
	require.Equal(t, "Infosys", quote.Name)
}

func TestGetDetailNotFound(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(respond(t, http.StatusNotFound, map[string]any{}), nil).
		Times(1)

	client := upstream.New(upstream.WithHTTPClient(httpClient))

	// Act
	_, err := client.GetDetail(t.Context(), "NOPE")

	// Assert: the id travels with the typed error
	require.ErrorIs(t, err, provider.ErrNoDataAvailable)
	var fe *provider.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, "NOPE", fe.ID)
}

func TestGetSeries(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/v1/quotes/TCS/series", req.URL.Path)
			require.Equal(t, "1W", req.URL.Query().Get("window"))
			return respond(t, http.StatusOK, ok([]map[string]any{
				{"t": 1_700_000_000, "o": 1, "h": 2, "l": 0.5, "c": 1.5, "v": 100},
				{"t": 0, "c": 9},
				{"t": 1_700_086_400, "o": 1.5, "h": 2.5, "l": 1, "c": 2, "v": 200},
			})), nil
		}).
		Times(1)

	client := upstream.New(upstream.WithHTTPClient(httpClient))

	// Act
	points, err := client.GetSeries(t.Context(), "TCS", provider.Window1W)

	// Assert
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, "1.5", points[0].Close.String())
	require.Equal(t, int64(200), points[1].Volume)
}
