package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunelab/genrescope/internal/media"
	"github.com/tunelab/genrescope/internal/stubserver"
)

func writeMedia(t *testing.T, name string, size int) *media.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", size)), 0o644))
	f, err := media.Open(path)
	require.NoError(t, err)
	return f
}

func predictHandler(t *testing.T, status int, body string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestParseBaseURL(t *testing.T) {
	u, err := ParseBaseURL("example.com:5000/api/?x=1#frag")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com:5000/api", u.String())

	u, err = ParseBaseURL("https://genres.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://genres.example.com/predict", endpoint(u, "/predict"))

	_, err = ParseBaseURL("   ")
	assert.Error(t, err)
	_, err = ParseBaseURL("http://")
	assert.Error(t, err)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, -1, Percent(10, 0))
	assert.Equal(t, 0, Percent(0, 200))
	assert.Equal(t, 50, Percent(100, 200))
	assert.Equal(t, 33, Percent(1, 3))
	assert.Equal(t, 67, Percent(2, 3))
	assert.Equal(t, 100, Percent(300, 200))
	assert.Equal(t, 0, Percent(-5, 200))
}

func TestMultipartBodyLengthMatchesStream(t *testing.T) {
	f := writeMedia(t, "song.mp3", 4096)
	body, err := newMultipartBody(f)
	require.NoError(t, err)

	r, err := body.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.EqualValues(t, body.Len(), len(data))
	assert.Contains(t, string(data), `name="file"; filename="song.mp3"`)
	assert.True(t, strings.HasPrefix(body.contentType, "multipart/form-data; boundary="))
}

func TestPrimaryUploadSuccess(t *testing.T) {
	var gotName, gotUA string
	var gotLen int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)
		gotLen = r.ContentLength
		gotUA = r.Header.Get("User-Agent")
		file, header, err := r.FormFile("file")
		if assert.NoError(t, err) {
			gotName = header.Filename
			_ = file.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"genre":"Jazz","source":"audio","features_used":57,"top3":[{"genre":"jazz","prob":0.8}]}`)
	}))
	defer srv.Close()

	f := writeMedia(t, "track.wav", 1024)
	p, err := NewPrimary(srv.URL)
	require.NoError(t, err)

	pred, err := p.Upload(context.Background(), f, nil)
	require.NoError(t, err)
	require.NotNil(t, pred)
	assert.Equal(t, "Jazz", pred.Genre)
	assert.Equal(t, "jazz", pred.DisplayGenre())
	assert.Equal(t, FlexString("57"), pred.FeaturesUsed)
	require.Len(t, pred.Top3, 1)
	assert.InDelta(t, 0.8, pred.Top3[0].Prob, 1e-9)
	assert.Equal(t, "track.wav", gotName)
	assert.Equal(t, defaultUserAgent, gotUA)
	assert.Greater(t, gotLen, int64(1024))
}

func TestPrimaryUploadServerErrorUsesBodyText(t *testing.T) {
	srv := httptest.NewServer(predictHandler(t, http.StatusBadRequest, `{"error":"No file uploaded"}`))
	defer srv.Close()

	p, err := NewPrimary(srv.URL)
	require.NoError(t, err)
	_, err = p.Upload(context.Background(), writeMedia(t, "a.mp3", 10), nil)

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, KindServer, be.Kind)
	assert.Equal(t, http.StatusBadRequest, be.Status)
	assert.Equal(t, "No file uploaded", Message(err))
	assert.False(t, IsFallbackEligible(err))
}

func TestPrimaryUploadServerErrorWithoutText(t *testing.T) {
	srv := httptest.NewServer(predictHandler(t, http.StatusInternalServerError, `{}`))
	defer srv.Close()

	p, err := NewPrimary(srv.URL)
	require.NoError(t, err)
	_, err = p.Upload(context.Background(), writeMedia(t, "a.mp3", 10), nil)

	assert.Equal(t, KindServer, KindOf(err))
	assert.Equal(t, "Request failed (500)", Message(err))
}

func TestPrimaryUploadNonJSONIsParseError(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusBadGateway} {
		srv := httptest.NewServer(predictHandler(t, status, "<html>oops</html>"))
		p, err := NewPrimary(srv.URL)
		require.NoError(t, err)
		_, err = p.Upload(context.Background(), writeMedia(t, "a.mp3", 10), nil)
		srv.Close()

		assert.Equal(t, KindParse, KindOf(err), "status %d", status)
		assert.Equal(t, MsgParse, Message(err))
		assert.False(t, IsFallbackEligible(err))
	}
}

func TestPrimaryUploadUnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, err := NewPrimary(url, WithTimeout(2*time.Second))
	require.NoError(t, err)
	_, err = p.Upload(context.Background(), writeMedia(t, "a.mp3", 10), nil)

	assert.Equal(t, KindNetwork, KindOf(err))
	assert.Equal(t, MsgNetwork, Message(err))
	assert.True(t, IsFallbackEligible(err))
}

func TestPrimaryUploadCancelledIsNotEligible(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p, err := NewPrimary(srv.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err = p.Upload(ctx, writeMedia(t, "a.mp3", 10), nil)

	assert.Equal(t, KindNetwork, KindOf(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsFallbackEligible(err))
}

func TestPrimaryUsesConfiguredPath(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = io.WriteString(w, `{"genre":"rock"}`)
	}))
	defer srv.Close()

	p, err := NewPrimary(srv.URL+"/api/", WithPath("predict_stream"))
	require.NoError(t, err)
	_, err = p.Upload(context.Background(), writeMedia(t, "a.mp3", 10), nil)
	require.NoError(t, err)
	assert.Equal(t, "/api/predict_stream", path)
}

func TestFallbackUploadReportsMonotonicProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, `{"genre":"blues"}`)
	}))
	defer srv.Close()

	fb, err := NewFallback(srv.URL)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []int
	pred, err := fb.Upload(context.Background(), writeMedia(t, "clip.mp4", 256*1024), func(p int) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, "blues", pred.Genre)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 100, seen[len(seen)-1])
	for _, p := range seen {
		assert.GreaterOrEqual(t, p, 0)
		assert.LessOrEqual(t, p, 100)
	}
}

func TestUploadWithoutGenreIsParseError(t *testing.T) {
	for _, body := range []string{"", "{}", `{"genre":"  ","source":"audio"}`} {
		srv := httptest.NewServer(predictHandler(t, http.StatusOK, body))

		fb, err := NewFallback(srv.URL)
		require.NoError(t, err)
		_, err = fb.Upload(context.Background(), writeMedia(t, "a.mp3", 10), nil)
		assert.Equal(t, KindParse, KindOf(err), "fallback body %q", body)
		assert.Equal(t, MsgParse, Message(err))
		assert.False(t, IsFallbackEligible(err))

		if body != "" {
			p, err := NewPrimary(srv.URL)
			require.NoError(t, err)
			_, err = p.Upload(context.Background(), writeMedia(t, "a.mp3", 10), nil)
			assert.Equal(t, KindParse, KindOf(err), "primary body %q", body)
		}
		srv.Close()
	}
}

func TestFallbackUploadNonJSONErrorIsServerError(t *testing.T) {
	srv := httptest.NewServer(predictHandler(t, http.StatusBadGateway, "<html>bad gateway</html>"))
	defer srv.Close()

	fb, err := NewFallback(srv.URL)
	require.NoError(t, err)
	_, err = fb.Upload(context.Background(), writeMedia(t, "a.mp3", 10), nil)

	assert.Equal(t, KindServer, KindOf(err))
	assert.Equal(t, "Request failed (502)", Message(err))
}

func TestFallbackUploadNonJSONSuccessIsParseError(t *testing.T) {
	srv := httptest.NewServer(predictHandler(t, http.StatusOK, "not json"))
	defer srv.Close()

	fb, err := NewFallback(srv.URL)
	require.NoError(t, err)
	_, err = fb.Upload(context.Background(), writeMedia(t, "a.mp3", 10), nil)

	assert.Equal(t, KindParse, KindOf(err))
	assert.Equal(t, MsgParse, Message(err))
}

func TestFallbackUploadUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	fb, err := NewFallback(url)
	require.NoError(t, err)
	_, err = fb.Upload(context.Background(), writeMedia(t, "a.mp3", 10), nil)
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.Equal(t, MsgNetwork, Message(err))
}

func TestProberCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		_, _ = io.WriteString(w, `{"message":"Genre classifier","expected_features":57,"use":"POST /predict"}`)
	}))
	defer srv.Close()

	p, err := NewProber(srv.URL)
	require.NoError(t, err)
	h, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, h.Status)
	assert.Equal(t, 57, h.ExpectedFeatures)
	assert.Equal(t, "Genre classifier", h.Message)
	assert.True(t, p.Probe(context.Background()))
}

func TestProberNonJSONStillReachable(t *testing.T) {
	srv := httptest.NewServer(predictHandler(t, http.StatusOK, "hello"))
	defer srv.Close()

	p, err := NewProber(srv.URL)
	require.NoError(t, err)
	assert.True(t, p.Probe(context.Background()))
}

func TestProberRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(predictHandler(t, http.StatusServiceUnavailable, `{}`))
	defer srv.Close()

	p, err := NewProber(srv.URL)
	require.NoError(t, err)
	h, err := p.Check(context.Background())
	assert.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, h.Status)
	assert.False(t, p.Probe(context.Background()))
}

func TestProberUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, err := NewProber(url, WithTimeout(time.Second))
	require.NoError(t, err)
	assert.False(t, p.Probe(context.Background()))
}

// stallHandler answers only after wait, or never if the client gives up first.
func stallHandler(wait time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(wait):
			_, _ = io.WriteString(w, `{"genre":"rock"}`)
		case <-r.Context().Done():
		}
	}
}

func TestProberTimeoutIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(stallHandler(2 * time.Second))
	defer srv.Close()

	p, err := NewProber(srv.URL, WithTimeout(100*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	assert.False(t, p.Probe(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestPrimaryUploadTimeoutIsEligibleNetworkError(t *testing.T) {
	srv := httptest.NewServer(stubserver.New(stubserver.Options{Delay: 2 * time.Second}).Handler())
	defer srv.Close()

	p, err := NewPrimary(srv.URL, WithTimeout(100*time.Millisecond))
	require.NoError(t, err)
	_, err = p.Upload(context.Background(), writeMedia(t, "a.mp3", 10), nil)

	assert.Equal(t, KindNetwork, KindOf(err))
	assert.Equal(t, MsgNetwork, Message(err))
	assert.True(t, IsFallbackEligible(err))
}

func TestFallbackUploadTimeoutIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(stubserver.New(stubserver.Options{Delay: 2 * time.Second}).Handler())
	defer srv.Close()

	fb, err := NewFallback(srv.URL, WithTimeout(100*time.Millisecond))
	require.NoError(t, err)
	_, err = fb.Upload(context.Background(), writeMedia(t, "a.mp3", 10), nil)

	assert.Equal(t, KindNetwork, KindOf(err))
	assert.Equal(t, MsgNetwork, Message(err))
}

func TestFallbackUploadWithinTimeoutSucceeds(t *testing.T) {
	srv := httptest.NewServer(stubserver.New(stubserver.Options{Delay: 50 * time.Millisecond}).Handler())
	defer srv.Close()

	fb, err := NewFallback(srv.URL, WithTimeout(5*time.Second))
	require.NoError(t, err)
	var mu sync.Mutex
	var last int
	pred, err := fb.Upload(context.Background(), writeMedia(t, "a.flac", 64), func(p int) {
		mu.Lock()
		last = p
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Contains(t, stubserver.Genres, pred.Genre)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 100, last)
}

func TestFlexString(t *testing.T) {
	var p Prediction
	require.NoError(t, p.FeaturesUsed.UnmarshalJSON([]byte(`"12"`)))
	n, ok := p.FeaturesUsed.Int()
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	require.NoError(t, p.FeaturesUsed.UnmarshalJSON([]byte(`null`)))
	_, ok = p.FeaturesUsed.Int()
	assert.False(t, ok)
}
