package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"inferd/internal/backend"
	"inferd/internal/batch"
	"inferd/internal/hardware"
	"inferd/internal/modelfile"
	"inferd/internal/optimizer"
	"inferd/pkg/types"
)

// decodeJSON reads a bounded JSON body into v; on failure it writes the 400
// and reports false.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func settingsFor(cfg backend.Config) types.BackendSettings {
	return types.BackendSettings{
		Backend:     cfg.Backend,
		GPULayers:   cfg.GPULayers,
		ContextSize: cfg.ContextSize,
		BatchSize:   cfg.BatchSize,
		Threads:     cfg.Threads,
	}
}

// handleLoad godoc
// @Summary      Load a model
// @Description  Analyzes the model file, scores the registered backends and loads on the best one, walking the fallback chain on failure.
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        request body types.LoadRequest true "Model path and tuning preferences"
// @Success      200 {object} types.LoadResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Failure      503 {object} types.ErrorResponse
// @Router       /load [post]
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req types.LoadRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSONError(w, http.StatusBadRequest, "path is required")
		return
	}

	sess, err := s.rt.LoadModel(r.Context(), req.Path,
		optimizer.ParsePreference(req.Preference), optimizer.ParseTarget(req.Target))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.LoadResponse{
		Backend:       sess.Backend,
		Settings:      settingsFor(sess.Config),
		HardwareUsed:  sess.HardwareUsed,
		LoadTimeMS:    sess.LoadTimeMS,
		Confidence:    sess.Confidence,
		FallbacksUsed: sess.FallbacksUsed,
	})
}

// handleUnload godoc
// @Summary      Unload the current model
// @Description  Releases the live session. Succeeds when no model is loaded.
// @Tags         models
// @Success      204 "unloaded"
// @Failure      429 {object} types.ErrorResponse
// @Router       /unload [post]
func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.Unload(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSwitch godoc
// @Summary      Pin a backend
// @Description  Pins future loads to the named backend ("auto" clears the pin) and optionally reloads the current model on it.
// @Tags         backends
// @Accept       json
// @Produce      json
// @Param        request body types.SwitchRequest true "Backend to pin"
// @Success      200 {object} types.LoadResponse
// @Success      204 "pinned, nothing loaded"
// @Failure      400 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Router       /switch [post]
func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req types.SwitchRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Backend == "" {
		writeJSONError(w, http.StatusBadRequest, "backend is required")
		return
	}

	sess, err := s.rt.SwitchBackend(r.Context(), req.Backend, req.Reload)
	if err != nil {
		writeError(w, err)
		return
	}
	if sess == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, types.LoadResponse{
		Backend:       sess.Backend,
		Settings:      settingsFor(sess.Config),
		HardwareUsed:  sess.HardwareUsed,
		LoadTimeMS:    sess.LoadTimeMS,
		Confidence:    sess.Confidence,
		FallbacksUsed: sess.FallbacksUsed,
	})
}

// handleGenerate godoc
// @Summary      Submit a generation request
// @Description  Queues the prompt for batched generation. Returns the request id immediately, or the finished result when sync is set.
// @Tags         generate
// @Accept       json
// @Produce      json
// @Param        request body types.GenerateRequest true "Prompt and sampling parameters"
// @Success      200 {object} types.ResultResponse
// @Success      202 {object} types.GenerateAccepted
// @Failure      400 {object} types.ErrorResponse
// @Failure      409 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Router       /generate [post]
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	gen := backend.GenerationConfig{
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		RepeatPenalty: req.RepeatPenalty,
		Seed:          req.Seed,
		Stop:          req.Stop,
	}

	var (
		id  string
		err error
	)
	if req.TimeoutMS > 0 {
		deadline := time.Now().Add(time.Duration(req.TimeoutMS) * time.Millisecond)
		id, err = s.batch.SubmitWithDeadline(req.Prompt, gen, req.Priority, deadline)
	} else {
		id, err = s.batch.Submit(req.Prompt, gen, req.Priority)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if !req.Sync {
		writeJSON(w, http.StatusAccepted, types.GenerateAccepted{RequestID: id})
		return
	}

	wait := s.cfg.ResultWait
	if req.TimeoutMS > 0 {
		wait = time.Duration(req.TimeoutMS) * time.Millisecond
	}
	res, err := s.batch.GetResult(r.Context(), id, wait)
	if err != nil {
		if batch.IsWaitTimeout(err) {
			// Still running; the client can poll /results/{id}.
			writeJSON(w, http.StatusAccepted, types.GenerateAccepted{RequestID: id})
			return
		}
		writeError(w, err)
		return
	}
	if res.Err != nil {
		writeError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, types.ResultResponse{
		RequestID:     res.ID,
		Text:          res.Text,
		CompletedAtMS: res.CompletedAt.UnixMilli(),
	})
}

// handleResult godoc
// @Summary      Fetch a generation result
// @Description  Waits up to timeout_ms for the request to finish. Fetching a finished result removes it.
// @Tags         generate
// @Produce      json
// @Param        id path string true "Request id"
// @Param        timeout_ms query int false "Wait bound in milliseconds; 0 returns immediately"
// @Success      200 {object} types.ResultResponse
// @Success      202 {object} types.GenerateAccepted
// @Failure      404 {object} types.ErrorResponse
// @Router       /results/{id} [get]
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	wait := s.cfg.ResultWait
	if q := r.URL.Query().Get("timeout_ms"); q != "" {
		ms, err := strconv.Atoi(q)
		if err != nil || ms < 0 {
			writeJSONError(w, http.StatusBadRequest, "timeout_ms must be a non-negative integer")
			return
		}
		wait = time.Duration(ms) * time.Millisecond
		if wait == 0 {
			wait = time.Millisecond
		}
	}

	res, err := s.batch.GetResult(r.Context(), id, wait)
	if err != nil {
		if batch.IsWaitTimeout(err) {
			writeJSON(w, http.StatusAccepted, types.GenerateAccepted{RequestID: id})
			return
		}
		writeError(w, err)
		return
	}
	resp := types.ResultResponse{
		RequestID:     res.ID,
		Text:          res.Text,
		CompletedAtMS: res.CompletedAt.UnixMilli(),
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCancel godoc
// @Summary      Cancel a queued request
// @Description  Cancels a request that has not been dispatched yet. Dispatched or finished requests are not cancellable.
// @Tags         generate
// @Param        id path string true "Request id"
// @Success      204 "canceled"
// @Failure      404 {object} types.ErrorResponse
// @Failure      409 {object} types.ErrorResponse
// @Router       /requests/{id} [delete]
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.batch.Cancel(id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	state, ok := s.batch.Status(id)
	if !ok {
		writeError(w, &batch.UnknownRequestError{ID: id})
		return
	}
	writeJSONError(w, http.StatusConflict, fmt.Sprintf("request %s is %s and cannot be canceled", id, state))
}

// handleStatus godoc
// @Summary      Engine status
// @Description  Reports the engine state, the live session, per-backend availability and usage history, and queue depths.
// @Tags         status
// @Produce      json
// @Success      200 {object} types.StatusResponse
// @Router       /status [get]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.rt.Statistics()

	backends := make([]types.BackendStatus, 0)
	for _, st := range s.reg.Statuses() {
		bs := types.BackendStatus{
			Name:      st.Name,
			Available: st.Available,
			Error:     st.Err,
		}
		if !st.LastChecked.IsZero() {
			bs.LastCheckedUnix = st.LastChecked.Unix()
		}
		if h, ok := stats.Backends[st.Name]; ok {
			bs.Attempts = h.Attempts
			bs.Successes = h.Successes
			bs.SuccessRate = h.SuccessRate()
			bs.AvgLoadTimeMS = h.AvgLoadTimeMS
		}
		backends = append(backends, bs)
	}

	resp := types.StatusResponse{
		State:          "idle",
		Backends:       backends,
		QueueLen:       s.batch.Depth(),
		Inflight:       s.batch.Outstanding(),
		LoadsTotal:     uint64(stats.LoadsTotal),
		FallbacksTotal: uint64(stats.FallbacksTotal),
		UptimeSeconds:  stats.UptimeSeconds,
		ServerTimeUnix: time.Now().Unix(),
	}
	if s.rt.Loading() {
		resp.State = "loading"
	} else if sess, ok := s.rt.Current(); ok {
		resp.State = "ready"
		resp.Session = &types.SessionStatus{
			ModelPath:    sess.ModelPath,
			Backend:      sess.Backend,
			Settings:     settingsFor(sess.Config),
			LoadedAtUnix: sess.LoadedAt.Unix(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHardware godoc
// @Summary      Detected hardware
// @Description  Returns the cached hardware snapshot; refresh=true forces re-detection.
// @Tags         status
// @Produce      json
// @Param        refresh query bool false "Force re-detection"
// @Success      200 {object} types.Hardware
// @Router       /hardware [get]
func (s *Server) handleHardware(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	var info hardware.Info
	if refresh {
		info = s.rt.RefreshHardware(r.Context())
	} else {
		info = s.rt.Hardware(r.Context())
	}

	gpus := make([]types.GPUDevice, len(info.GPUs))
	for i, g := range info.GPUs {
		gpus[i] = types.GPUDevice{
			Index:             g.Index,
			Name:              g.Name,
			Vendor:            g.Vendor,
			VRAMMB:            g.VRAMMB,
			FreeVRAMMB:        g.FreeVRAMMB,
			DriverVersion:     g.DriverVersion,
			ComputeCapability: g.ComputeCapability,
		}
	}
	writeJSON(w, http.StatusOK, types.Hardware{
		GPUCount:           info.GPUCount,
		GPUs:               gpus,
		TotalVRAMMB:        info.TotalVRAMMB,
		CPUCores:           info.CPUCores,
		TotalRAMMB:         info.TotalRAMMB,
		RecommendedBackend: info.RecommendedBackend,
	})
}

// handleRecommendation godoc
// @Summary      Preview a backend recommendation
// @Description  Scores the registered backends for the model without loading anything.
// @Tags         backends
// @Produce      json
// @Param        path query string true "Model file path"
// @Param        preference query string false "auto, gpu or cpu"
// @Param        target query string false "speed, balanced or quality"
// @Success      200 {object} types.RecommendationResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /recommendation [get]
func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		writeJSONError(w, http.StatusBadRequest, "path is required")
		return
	}

	rec, _, err := s.rt.Recommend(r.Context(), path,
		optimizer.ParsePreference(q.Get("preference")), optimizer.ParseTarget(q.Get("target")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.RecommendationResponse{
		Backend:    rec.Backend,
		Settings:   settingsFor(rec.Config),
		Confidence: rec.Confidence,
		Fallbacks:  rec.Fallbacks,
		Reasoning:  rec.Reasoning,
	})
}

// handleModels godoc
// @Summary      List discoverable models
// @Description  Scans the configured models directory for known model formats.
// @Tags         models
// @Produce      json
// @Success      200 {object} types.ModelsResponse
// @Failure      500 {object} types.ErrorResponse
// @Router       /models [get]
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := modelfile.ScanDir(s.modelsDir)
	if err != nil {
		writeError(w, err)
		return
	}
	if models == nil {
		models = []types.Model{}
	}
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
}

// handleHealthz godoc
// @Summary      Liveness probe
// @Tags         status
// @Success      200 {string} string "ok"
// @Router       /healthz [get]
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleReadyz godoc
// @Summary      Readiness probe
// @Description  Reports 503 while a model load is in progress.
// @Tags         status
// @Success      200 {string} string "ready"
// @Failure      503 {string} string "loading"
// @Router       /readyz [get]
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.rt.Loading() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
