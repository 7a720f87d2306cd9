package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kuanb/gosm-matcher/geocode"
	"kuanb/gosm-matcher/matching"
	"kuanb/gosm-matcher/road"
	"kuanb/gosm-matcher/store"
)

func testSegments() []road.Segment {
	return []road.Segment{
		{StartLat: 0, StartLon: 0, EndLat: 0, EndLon: 0.001, RoadType: road.Highway},
		{StartLat: 0, StartLon: 1, EndLat: 0, EndLon: 1.001, RoadType: road.ServiceRoad},
	}
}

func testAPI(t *testing.T, opts ...Option) http.Handler {
	t.Helper()
	index, err := matching.BuildIndex(testSegments())
	require.NoError(t, err)
	m, err := matching.NewMatcher(index, matching.DefaultConfig())
	require.NoError(t, err)
	return New(m, nil, opts...).Handler()
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type matchBody struct {
	Data struct {
		RunID           int64            `json:"run_id"`
		Records         []map[string]any `json:"records"`
		Polyline        string           `json:"polyline"`
		MatchedPolyline string           `json:"matched_polyline"`
	} `json:"data"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Index   *int   `json:"index"`
	} `json:"error"`
}

const twoPoints = `{"points":[
	{"lat":0,"lon":0,"timestamp":"2024-05-01T08:00:00Z"},
	{"lat":0,"lon":0.0005,"timestamp":"2024-05-01T08:00:01Z"}]}`

func TestMatch(t *testing.T) {
	rec := do(testAPI(t), postJSON("/api/match", twoPoints))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body matchBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Records, 2)
	for _, r := range body.Data.Records {
		assert.Equal(t, 0.0, r["segment_id"])
		assert.Equal(t, road.Highway, r["road_type"])
	}
	assert.Equal(t, 0.0, body.Data.Records[0]["speed_mps"])
	assert.InDelta(t, 55.66, body.Data.Records[1]["speed_mps"], 0.01)
	assert.NotEmpty(t, body.Data.Polyline)
	assert.NotEmpty(t, body.Data.MatchedPolyline)
}

func TestMatchEmptyTrajectory(t *testing.T) {
	rec := do(testAPI(t), postJSON("/api/match", `{"points":[]}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var body matchBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Data.Records)
}

func TestMatchBadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"points":`, "invalid request body"},
		{"missing points", `{}`, "points"},
		{"missing lat", `{"points":[{"lon":0,"timestamp":"2024-05-01T08:00:00Z"}]}`, "lat"},
		{"latitude out of range", `{"points":[{"lat":91,"lon":0,"timestamp":"2024-05-01T08:00:00Z"}]}`, "latitude"},
		{"missing timestamp", `{"points":[{"lat":0,"lon":0}]}`, "timestamp"},
	}
	h := testAPI(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, postJSON("/api/match", tt.body))
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body.Error.Message, tt.want)
		})
	}
}

type stubReverser struct{}

func (stubReverser) Reverse(context.Context, float64, float64) (geocode.Place, error) {
	return geocode.Place{City: "Null Island", Country: "Atlantic"}, nil
}

func TestMatchGeocode(t *testing.T) {
	h := testAPI(t, WithGeocoder(stubReverser{}))
	body := strings.Replace(twoPoints, `{"points"`, `{"geocode":true,"points"`, 1)

	rec := do(h, postJSON("/api/match", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp matchBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Records, 2)
	assert.Equal(t, "Null Island", resp.Data.Records[0]["city"])
	assert.Equal(t, 0.0, resp.Data.Records[0]["segment_id"])
}

func TestMatchDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	rec := do(testAPI(t), postJSON("/api/match", twoPoints).WithContext(ctx))
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error.Index)
	assert.Equal(t, 0, *body.Error.Index)
}

func TestMatchWithoutNetwork(t *testing.T) {
	h := New(nil, nil).Handler()
	rec := do(h, postJSON("/api/match", twoPoints))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMatchGeoJSON(t *testing.T) {
	rec := do(testAPI(t), postJSON("/api/match/geojson", twoPoints))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var fc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc["type"])
	// path + 2 fixes + 1 segment
	assert.Len(t, fc["features"], 4)
}

func TestMatchBatch(t *testing.T) {
	body := `{"trajectories":[
		{"points":[{"lat":0,"lon":0,"timestamp":"2024-05-01T08:00:00Z"}]},
		{"points":[{"lat":0.0001,"lon":1.0002,"timestamp":"2024-05-01T08:00:00Z"}]}]}`
	rec := do(testAPI(t, WithWorkers(2)), postJSON("/api/match/batch", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data []struct {
			Records []map[string]any `json:"records"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, 0.0, resp.Data[0].Records[0]["segment_id"])
	assert.Equal(t, 1.0, resp.Data[1].Records[0]["segment_id"])
}

func TestMatchBatchEmpty(t *testing.T) {
	rec := do(testAPI(t), postJSON("/api/match/batch", `{"trajectories":[]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

const (
	roadCSV = "start_latitude,start_longitude,end_latitude,end_longitude,road_type\n" +
		"0,0,0,0.001,highway\n" +
		"0,1,0,1.001,service road\n"
	gpsCSV = "latitude,longitude,timestamp\n" +
		"0,0,2024-05-01 08:00:00\n" +
		"0.0001,1.0002,2024-05-01 09:00:00\n"
)

func uploadRequest(t *testing.T, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, content := range files {
		fw, err := mw.CreateFormFile(field, field+".csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/match/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestMatchUpload(t *testing.T) {
	h := New(nil, nil).Handler()
	rec := do(h, uploadRequest(t, map[string]string{"road_file": roadCSV, "gps_file": gpsCSV}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body matchBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Records, 2)
	assert.Equal(t, 0.0, body.Data.Records[0]["segment_id"])
	assert.Equal(t, 1.0, body.Data.Records[1]["segment_id"])
	assert.Zero(t, body.Data.RunID)
}

func TestMatchUploadErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  int
	}{
		{"missing road file", map[string]string{"gps_file": gpsCSV}, http.StatusBadRequest},
		{"missing road column", map[string]string{
			"road_file": "start_latitude,start_longitude,end_latitude,end_longitude\n0,0,0,1\n",
			"gps_file":  gpsCSV,
		}, http.StatusBadRequest},
		{"bad gps value", map[string]string{
			"road_file": roadCSV,
			"gps_file":  "latitude,longitude,timestamp\nnorth,0,2024-05-01 08:00:00\n",
		}, http.StatusBadRequest},
		{"empty road network", map[string]string{
			"road_file": "start_latitude,start_longitude,end_latitude,end_longitude,road_type\n",
			"gps_file":  gpsCSV,
		}, http.StatusUnprocessableEntity},
	}
	h := New(nil, nil).Handler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, uploadRequest(t, tt.files))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestMatchUploadStored(t *testing.T) {
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "matcher.db"))
	require.NoError(t, err)
	defer s.Close()

	h := New(nil, nil, WithStore(s)).Handler()
	rec := do(h, uploadRequest(t, map[string]string{"road_file": roadCSV, "gps_file": gpsCSV}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body matchBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotZero(t, body.Data.RunID)

	segments, err := s.LoadSegments(context.Background())
	require.NoError(t, err)
	assert.Len(t, segments, 2)

	rec = do(h, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/match/runs/%d", body.Data.RunID), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var run matchBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, body.Data.RunID, run.Data.RunID)
	assert.Equal(t, body.Data.Records, run.Data.Records)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/match/runs/999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/match/runs/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := do(testAPI(t), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("matcher_road_segments 2\n"))
	})
	rec := do(testAPI(t, WithMetrics(metrics)), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "matcher_road_segments")

	rec = do(testAPI(t), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoverPanic(t *testing.T) {
	api := New(nil, nil)
	h := api.recoverPanic(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "close", rec.Header().Get("Connection"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing field", &road.MissingFieldError{Field: "road_type", Row: 2}, http.StatusBadRequest},
		{"invalid field", fmt.Errorf("read: %w", &road.InvalidFieldError{Field: "lat", Row: 0}), http.StatusBadRequest},
		{"invalid point", &matching.MatchError{Index: 3, Err: matching.ErrInvalidPoint}, http.StatusBadRequest},
		{"empty input", matching.ErrEmptyInput, http.StatusUnprocessableEntity},
		{"empty network", matching.ErrEmptyRoadNetwork, http.StatusUnprocessableEntity},
		{"deadline", &matching.MatchError{Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
