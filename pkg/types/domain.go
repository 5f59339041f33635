package types

// Model represents a discoverable or loadable LLM model on disk.
type Model struct {
	// Stable identifier for the model.
	// example: tinyllama-q4
	ID string `json:"id" example:"tinyllama-q4"`
	// Human-friendly name.
	// example: TinyLlama (Q4)
	Name string `json:"name" example:"TinyLlama (Q4)"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Quantization level or variant string.
	// example: Q4_K_M
	Quant string `json:"quant" example:"Q4_K_M"`
	// Optional family (e.g., llama, mistral, phi).
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
	// File size in megabytes.
	// example: 668
	SizeMB int `json:"size_mb,omitempty" example:"668"`
}

// GPUDevice describes one detected GPU.
type GPUDevice struct {
	// Zero-based device index.
	// example: 0
	Index int `json:"index" example:"0"`
	// Device name as reported by the driver.
	// example: NVIDIA GeForce RTX 3060
	Name string `json:"name" example:"NVIDIA GeForce RTX 3060"`
	// Vendor: nvidia, amd, intel, apple or unknown.
	// example: nvidia
	Vendor string `json:"vendor" example:"nvidia"`
	// Total VRAM in MB.
	// example: 12288
	VRAMMB int `json:"vram_mb" example:"12288"`
	// Free VRAM in MB at detection time.
	// example: 11020
	FreeVRAMMB int `json:"free_vram_mb" example:"11020"`
	// Driver version string, if available.
	// example: 550.54.14
	DriverVersion string `json:"driver_version,omitempty" example:"550.54.14"`
	// CUDA compute capability, nvidia only.
	// example: 8.6
	ComputeCapability string `json:"compute_capability,omitempty" example:"8.6"`
}

// Hardware summarizes the host machine for API consumers.
type Hardware struct {
	// Number of detected GPUs.
	// example: 1
	GPUCount int `json:"gpu_count" example:"1"`
	// Detected GPU devices.
	GPUs []GPUDevice `json:"gpus,omitempty"`
	// Total VRAM across devices in MB.
	// example: 12288
	TotalVRAMMB int `json:"total_vram_mb" example:"12288"`
	// Logical CPU cores.
	// example: 16
	CPUCores int `json:"cpu_cores" example:"16"`
	// Total system RAM in MB.
	// example: 32768
	TotalRAMMB int `json:"total_ram_mb" example:"32768"`
	// Backend hint derived from the detected hardware.
	// example: llamacpp
	RecommendedBackend string `json:"recommended_backend,omitempty" example:"llamacpp"`
}

// BackendSettings is the effective backend configuration for a load.
type BackendSettings struct {
	// Backend name the settings apply to.
	// example: llamacpp
	Backend string `json:"backend" example:"llamacpp"`
	// GPU layers: -1 all, 0 CPU only, N partial offload.
	// example: -1
	GPULayers int `json:"gpu_layers" example:"-1"`
	// Context window size in tokens.
	// example: 4096
	ContextSize int `json:"context_size" example:"4096"`
	// Prompt processing batch size.
	// example: 256
	BatchSize int `json:"batch_size" example:"256"`
	// Worker threads (0 = auto).
	// example: 8
	Threads int `json:"threads" example:"8"`
}
