package types

// EventMessage is the wire form of one engine event on the /events stream.
type EventMessage struct {
	// Event name, e.g. loading_started, backend_selected, fallback, model_loaded.
	// example: backend_selected
	Name string `json:"event" example:"backend_selected"`
	// Backend the event refers to, when applicable.
	// example: llamacpp
	Backend string `json:"backend,omitempty" example:"llamacpp"`
	// Model path the event refers to, when applicable.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Model string `json:"model,omitempty" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Additional event-specific fields.
	Fields map[string]any `json:"fields,omitempty"`
	// Emission time in unix milliseconds.
	// example: 1700000000000
	AtMS int64 `json:"at_ms" example:"1700000000000"`
}
