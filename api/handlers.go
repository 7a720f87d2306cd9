package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"kuanb/gosm-matcher/geocode"
	"kuanb/gosm-matcher/ingest"
	"kuanb/gosm-matcher/matching"
	"kuanb/gosm-matcher/render"
	"kuanb/gosm-matcher/road"
)

var (
	errNoNetwork = fmt.Errorf("no road network loaded, use /api/match/upload: %w", matching.ErrEmptyRoadNetwork)
	errNoStore   = errors.New("match runs are not persisted on this server")
)

func (api *API) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return validateRequest(dst)
}

func (api *API) match(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var request matchRequest
	if err := api.decode(w, r, &request); err != nil {
		api.BadRequestResponse(w, r, err)
		return
	}
	if api.matcher == nil {
		api.getStatusCode(w, r, errNoNetwork)
		return
	}

	ctx, cancel := api.requestContext(r)
	defer cancel()

	records, err := api.matcher.Match(ctx, toTrajectory(request.Points))
	if err != nil {
		api.getStatusCode(w, r, err)
		return
	}

	var enriched []geocode.EnrichedRecord
	if request.Geocode && api.geocoder != nil {
		enriched = geocode.Enrich(ctx, api.geocoder, records, api.log)
	}

	if err := api.writeJSON(w, http.StatusOK, envelope{"data": NewMatchResponse(records, enriched)}, nil); err != nil {
		api.ServerErrorResponse(w, r, err)
	}
}

func (api *API) matchGeoJSON(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var request trajectoryRequest
	if err := api.decode(w, r, &request); err != nil {
		api.BadRequestResponse(w, r, err)
		return
	}
	if api.matcher == nil {
		api.getStatusCode(w, r, errNoNetwork)
		return
	}

	ctx, cancel := api.requestContext(r)
	defer cancel()

	records, err := api.matcher.Match(ctx, toTrajectory(request.Points))
	if err != nil {
		api.getStatusCode(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Content-Type", "application/geo+json")
	if err := api.writeJSON(w, http.StatusOK, render.GeoJSON(records), headers); err != nil {
		api.ServerErrorResponse(w, r, err)
	}
}

func (api *API) matchBatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var request batchRequest
	if err := api.decode(w, r, &request); err != nil {
		api.BadRequestResponse(w, r, err)
		return
	}
	if api.matcher == nil {
		api.getStatusCode(w, r, errNoNetwork)
		return
	}

	trajectories := make([][]road.TrajectoryPoint, len(request.Trajectories))
	for i, t := range request.Trajectories {
		trajectories[i] = toTrajectory(t.Points)
	}

	ctx, cancel := api.requestContext(r)
	defer cancel()

	results, err := api.matcher.MatchBatch(ctx, trajectories, api.workers)
	if err != nil {
		api.getStatusCode(w, r, err)
		return
	}

	data := make([]matchResponse, len(results))
	for i, records := range results {
		data[i] = NewMatchResponse(records, nil)
	}
	if err := api.writeJSON(w, http.StatusOK, envelope{"data": data}, nil); err != nil {
		api.ServerErrorResponse(w, r, err)
	}
}

// matchUpload matches an uploaded GPS CSV against an uploaded road CSV, the
// two files of a multipart form named gps_file and road_file.
func (api *API) matchUpload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		api.BadRequestResponse(w, r, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var (
		segments   []road.Segment
		trajectory []road.TrajectoryPoint
	)
	err := readFormFile(r, "road_file", func(f io.Reader) (err error) {
		segments, err = ingest.ReadSegments(f)
		return err
	})
	if err == nil {
		err = readFormFile(r, "gps_file", func(f io.Reader) (err error) {
			trajectory, err = ingest.ReadTrajectory(f)
			return err
		})
	}
	if err != nil {
		api.getStatusCode(w, r, err)
		return
	}

	ctx, cancel := api.requestContext(r)
	defer cancel()

	index, err := matching.NewIndex(segments, api.matchCfg)
	if err != nil {
		api.getStatusCode(w, r, err)
		return
	}
	opts := append([]matching.Option{matching.WithLogger(api.log)}, api.matcherOpts...)
	matcher, err := matching.NewMatcher(index, api.matchCfg, opts...)
	if err != nil {
		api.getStatusCode(w, r, err)
		return
	}
	records, err := matcher.Match(ctx, trajectory)
	if err != nil {
		api.getStatusCode(w, r, err)
		return
	}

	resp := NewMatchResponse(records, nil)
	if api.store != nil {
		if _, err := api.store.SaveSegments(ctx, segments); err != nil {
			api.ServerErrorResponse(w, r, err)
			return
		}
		if resp.RunID, err = api.store.SaveMatches(ctx, records); err != nil {
			api.ServerErrorResponse(w, r, err)
			return
		}
		api.log.Info("match run stored", zap.Int64("run_id", resp.RunID), zap.Int("records", len(records)))
	}

	if err := api.writeJSON(w, http.StatusOK, envelope{"data": resp}, nil); err != nil {
		api.ServerErrorResponse(w, r, err)
	}
}

func (api *API) run(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if api.store == nil {
		api.NotFoundResponse(w, r, errNoStore)
		return
	}
	runID, err := strconv.ParseInt(p.ByName("id"), 10, 64)
	if err != nil {
		api.BadRequestResponse(w, r, errors.New("run id must be an integer"))
		return
	}

	records, err := api.store.LoadMatches(r.Context(), runID)
	if err != nil {
		api.ServerErrorResponse(w, r, err)
		return
	}
	if len(records) == 0 {
		api.NotFoundResponse(w, r, fmt.Errorf("run %d not found", runID))
		return
	}

	resp := NewMatchResponse(records, nil)
	resp.RunID = runID
	if err := api.writeJSON(w, http.StatusOK, envelope{"data": resp}, nil); err != nil {
		api.ServerErrorResponse(w, r, err)
	}
}

func readFormFile(r *http.Request, field string, read func(io.Reader) error) error {
	var (
		f   multipart.File
		err error
	)
	if f, _, err = r.FormFile(field); err != nil {
		return &road.MissingFieldError{Field: field, Row: -1}
	}
	defer f.Close()
	return read(f)
}
