package signaling_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/go-rtc-translate/internal/signaling"
)

func newClient(t *testing.T, handler http.HandlerFunc, tokens signaling.TokenSource) *signaling.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return signaling.NewClient(zaptest.NewLogger(t), srv.URL+"/", srv.Client(), tokens)
}

func TestClient_Health(t *testing.T) {
	tests := map[string]struct {
		status   int
		body     string
		wantFail bool
	}{
		"ok":           {status: http.StatusOK, body: `{"status":"ok"}`},
		"not ok":       {status: http.StatusOK, body: `{"status":"degraded"}`, wantFail: true},
		"server error": {status: http.StatusInternalServerError, body: `boom`, wantFail: true},
		"bad json":     {status: http.StatusOK, body: `{`, wantFail: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, nil)

			err := client.Health(context.Background())
			if tc.wantFail {
				require.Error(t, err)
				assert.ErrorIs(t, err, signaling.ErrHealthCheckFailed)

				return
			}
			require.NoError(t, err)
		})
	}
}

func TestClient_OfferSendsBearerAndBody(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/webrtc/offer", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req signaling.OfferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "offer", req.Type)
		assert.Equal(t, "id-1", req.WebRTCID)
		assert.Equal(t, "v=0", req.SDP)

		_, _ = w.Write([]byte(`{"sdp":"answer-sdp","type":"answer"}`))
	}, signaling.StaticToken("secret"))

	answer, err := client.Offer(context.Background(), signaling.OfferRequest{SDP: "v=0", Type: "offer", WebRTCID: "id-1"})
	require.NoError(t, err)
	assert.Equal(t, "answer-sdp", answer.SDP)
	assert.Equal(t, "answer", answer.Type)
}

func TestClient_OfferFailures(t *testing.T) {
	tests := map[string]struct {
		status  int
		body    string
		wantMsg string
		unauth  bool
	}{
		"server error": {
			status:  http.StatusInternalServerError,
			body:    "internal",
			wantMsg: "Server error: 500 - internal",
		},
		"unauthorized": {
			status:  http.StatusUnauthorized,
			body:    "expired",
			wantMsg: "Server error: 401 - expired",
			unauth:  true,
		},
		"rejected with reason": {
			status:  http.StatusOK,
			body:    `{"status":"failed","meta":{"error":"too many sessions"}}`,
			wantMsg: "too many sessions",
		},
		"rejected without reason": {
			status:  http.StatusOK,
			body:    `{"status":"failed"}`,
			wantMsg: "Unknown server error",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, nil)

			answer, err := client.Offer(context.Background(), signaling.OfferRequest{})
			require.Error(t, err)
			assert.Nil(t, answer)
			assert.Equal(t, tc.wantMsg, err.Error())
			assert.Equal(t, tc.unauth, errors.Is(err, signaling.ErrUnauthorized))
		})
	}
}

func TestClient_SetLanguageAndReset(t *testing.T) {
	var paths []string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.URL.Path == "/set_language" {
			var req signaling.LanguageRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, signaling.LanguageRequest{WebRTCID: "abc", SourceLanguage: "en", TargetLanguage: "ko"}, req)
		}
		w.WriteHeader(http.StatusOK)
	}, nil)

	require.NoError(t, client.Reset(context.Background()))
	require.NoError(t, client.SetLanguage(context.Background(), signaling.LanguageRequest{
		WebRTCID: "abc", SourceLanguage: "en", TargetLanguage: "ko",
	}))
	assert.Equal(t, []string{"GET /dev/reset", "POST /set_language"}, paths)
}

func TestFileToken_Refresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o600))

	tok := signaling.NewFileToken(path)
	got, err := tok.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	require.NoError(t, os.WriteFile(path, []byte("second"), 0o600))
	got, _ = tok.Token(context.Background())
	assert.Equal(t, "first", got, "token is cached until refresh")

	require.NoError(t, tok.Refresh(context.Background()))
	got, _ = tok.Token(context.Background())
	assert.Equal(t, "second", got)
}

func TestFileToken_Missing(t *testing.T) {
	tok := signaling.NewFileToken(filepath.Join(t.TempDir(), "absent"))
	_, err := tok.Token(context.Background())
	require.Error(t, err)
}
