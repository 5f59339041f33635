package types

// LoadRequest asks the engine to load a model, choosing a backend automatically.
type LoadRequest struct {
	// Absolute path to the model file.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Hardware preference: auto, gpu or cpu.
	// example: auto
	Preference string `json:"preference,omitempty" example:"auto"`
	// Performance target: speed, balanced or quality.
	// example: balanced
	Target string `json:"target,omitempty" example:"balanced"`
}

// SwitchRequest pins a specific backend, optionally reloading the current model.
type SwitchRequest struct {
	// Backend name to switch to.
	// example: llamaserver
	Backend string `json:"backend" example:"llamaserver"`
	// Reload the currently loaded model on the new backend.
	// example: true
	Reload bool `json:"reload,omitempty" example:"true"`
}

// GenerateRequest submits a prompt for batched generation.
type GenerateRequest struct {
	// Required prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Scheduling priority; higher runs earlier.
	// example: 5
	Priority int `json:"priority,omitempty" example:"5"`
	// Maximum number of new tokens to generate.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Repeat penalty applied by llama-style backends.
	// example: 1.1
	RepeatPenalty float64 `json:"repeat_penalty,omitempty" example:"1.1"`
	// Random seed for reproducibility; 0 or omitted lets the backend choose.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
	// Optional stop sequences. Generation stops when any sequence is matched.
	// example: ["\n\n","END"]
	Stop []string `json:"stop,omitempty" example:"[\"\\n\\n\",\"END\"]"`
	// Per-request deadline in milliseconds; 0 uses the server default.
	// example: 30000
	TimeoutMS int `json:"timeout_ms,omitempty" example:"30000"`
	// Wait for the result instead of returning a request id.
	// example: false
	Sync bool `json:"sync,omitempty" example:"false"`
}

// GenerateAccepted is returned when a generation request is queued.
type GenerateAccepted struct {
	// Identifier to poll results with.
	// example: 6bd2c5a0-6b4e-4f0a-9c3e-2f8d6c1a7b42
	RequestID string `json:"request_id" example:"6bd2c5a0-6b4e-4f0a-9c3e-2f8d6c1a7b42"`
}

// ResultResponse carries a completed generation.
type ResultResponse struct {
	// Identifier of the originating request.
	// example: 6bd2c5a0-6b4e-4f0a-9c3e-2f8d6c1a7b42
	RequestID string `json:"request_id" example:"6bd2c5a0-6b4e-4f0a-9c3e-2f8d6c1a7b42"`
	// Generated text when the request succeeded.
	Text string `json:"text,omitempty"`
	// Error message when the request failed.
	Error string `json:"error,omitempty"`
	// Completion time in unix milliseconds.
	// example: 1700000000000
	CompletedAtMS int64 `json:"completed_at_ms" example:"1700000000000"`
}

// LoadResponse reports the outcome of a successful model load.
type LoadResponse struct {
	// Backend that ended up serving the model.
	// example: llamacpp
	Backend string `json:"backend" example:"llamacpp"`
	// Effective settings used for the load.
	Settings BackendSettings `json:"settings"`
	// Hardware tier used: gpu, partial or cpu.
	// example: gpu
	HardwareUsed string `json:"hardware_used" example:"gpu"`
	// Wall-clock load time in milliseconds.
	// example: 2431
	LoadTimeMS int64 `json:"load_time_ms" example:"2431"`
	// Confidence of the recommendation that was applied, 0..1.
	// example: 0.92
	Confidence float64 `json:"confidence" example:"0.92"`
	// Backends that were tried and failed before this one.
	FallbacksUsed []string `json:"fallbacks_used,omitempty"`
}

// RecommendationResponse explains which backend the optimizer would pick.
type RecommendationResponse struct {
	// Recommended backend name; empty when no backend qualifies.
	// example: llamacpp
	Backend string `json:"backend" example:"llamacpp"`
	// Suggested settings for the recommended backend.
	Settings BackendSettings `json:"settings"`
	// Confidence in the recommendation, 0..1.
	// example: 0.92
	Confidence float64 `json:"confidence" example:"0.92"`
	// Remaining candidates in descending score order.
	Fallbacks []string `json:"fallbacks,omitempty"`
	// Human-readable scoring notes.
	Reasoning []string `json:"reasoning,omitempty"`
}

// BackendStatus reports availability and history for one registered backend.
type BackendStatus struct {
	// Backend name.
	// example: llamacpp
	Name string `json:"name" example:"llamacpp"`
	// Whether the backend probe succeeded last time it ran.
	// example: true
	Available bool `json:"available" example:"true"`
	// Last availability probe time in unix seconds, 0 if never probed.
	// example: 1700000000
	LastCheckedUnix int64 `json:"last_checked_unix,omitempty" example:"1700000000"`
	// Probe error when unavailable.
	Error string `json:"error,omitempty"`
	// Load attempts recorded across all models.
	// example: 12
	Attempts uint64 `json:"attempts" example:"12"`
	// Successful loads recorded across all models.
	// example: 11
	Successes uint64 `json:"successes" example:"11"`
	// Successes divided by attempts, 0..1.
	// example: 0.92
	SuccessRate float64 `json:"success_rate" example:"0.92"`
	// Mean load time across recorded attempts in milliseconds.
	// example: 2650
	AvgLoadTimeMS float64 `json:"avg_load_time_ms,omitempty" example:"2650"`
}

// SessionStatus summarizes the currently loaded model, if any.
type SessionStatus struct {
	// Path of the loaded model file.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	ModelPath string `json:"model_path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Backend serving the model.
	// example: llamacpp
	Backend string `json:"backend" example:"llamacpp"`
	// Settings the model was loaded with.
	Settings BackendSettings `json:"settings"`
	// Load completion time in unix seconds.
	// example: 1700000000
	LoadedAtUnix int64 `json:"loaded_at_unix" example:"1700000000"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Engine state: idle, loading or ready.
	// example: ready
	State string `json:"state" example:"ready"`
	// Current session; omitted when no model is loaded.
	Session *SessionStatus `json:"session,omitempty"`
	// Registered backends with availability and usage history.
	Backends []BackendStatus `json:"backends"`
	// Queued generation requests not yet dispatched.
	// example: 3
	QueueLen int `json:"queue_len" example:"3"`
	// Requests currently being processed.
	// example: 2
	Inflight int `json:"inflight" example:"2"`
	// Total model loads since start.
	// example: 4
	LoadsTotal uint64 `json:"loads_total" example:"4"`
	// Total fallback transitions since start.
	// example: 1
	FallbacksTotal uint64 `json:"fallbacks_total" example:"1"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Machine-readable failure kind, when known.
	// example: memory
	Kind string `json:"kind,omitempty" example:"memory"`
	// Per-backend failure reasons for exhausted loads.
	Attempts []AttemptError `json:"attempts,omitempty"`
	// Suggested remediations for exhausted loads.
	Hints []string `json:"hints,omitempty"`
}

// AttemptError describes one failed backend attempt inside a load.
type AttemptError struct {
	// Backend that was tried.
	// example: llamacpp
	Backend string `json:"backend" example:"llamacpp"`
	// Failure kind: availability, hardware, memory, configuration or timeout.
	// example: memory
	Kind string `json:"kind" example:"memory"`
	// Underlying error message.
	// example: model requires 8192 MB, 4096 MB free
	Error string `json:"error" example:"model requires 8192 MB, 4096 MB free"`
}
