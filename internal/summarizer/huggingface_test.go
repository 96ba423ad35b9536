package summarizer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestHuggingFaceSummarize(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"summary_text":"  short version "}]`))
	}))
	defer srv.Close()

	client := NewHuggingFace(HFConfig{Endpoint: srv.URL + "/", Token: "secret"}, srv.Client())
	got, err := client.Summarize(context.Background(), "long text", 20, 50)
	require.NoError(t, err)
	require.Equal(t, "short version", got)
	require.Equal(t, "/"+DefaultSummaryModel, gotPath)
	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, "long text", gjson.Get(gotBody, "inputs").String())
	require.Equal(t, int64(50), gjson.Get(gotBody, "parameters.max_length").Int())
	require.Equal(t, int64(20), gjson.Get(gotBody, "parameters.min_length").Int())
	require.False(t, gjson.Get(gotBody, "parameters.do_sample").Bool())
}

func TestHuggingFaceTranslate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/custom/model", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"translation_text":"你好"}]`))
	}))
	defer srv.Close()

	client := NewHuggingFace(HFConfig{Endpoint: srv.URL, TranslationModel: "custom/model"}, srv.Client())
	got, err := client.Translate(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "你好", got)
}

func TestHuggingFaceErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "model loading", status: http.StatusServiceUnavailable, body: `{"error":"Model is currently loading"}`, message: "currently loading"},
		{name: "plain failure", status: http.StatusBadGateway, body: ``, message: "Bad Gateway"},
		{name: "invalid json", status: http.StatusOK, body: `not json`, message: "invalid json"},
		{name: "missing field", status: http.StatusOK, body: `[{"generated_text":"x"}]`, message: "no summary_text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHuggingFace(HFConfig{Endpoint: srv.URL}, srv.Client()).Summarize(context.Background(), "text", 1, 10)
			require.ErrorIs(t, err, ErrInference)
			require.ErrorContains(t, err, tt.message)
		})
	}
}
