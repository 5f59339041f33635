package router

import (
	"context"
	"time"

	"inferd/internal/backend"
	"inferd/internal/modelfile"
	"inferd/internal/optimizer"
)

// Session is the live-backend handle produced by a successful load. It is
// the only path to the loaded model; nothing reads backend state ambiently.
type Session struct {
	Backend      string
	ModelPath    string
	ModelName    string
	Profile      *modelfile.Profile
	Config       backend.Config
	HardwareUsed string
	LoadTimeMS   int64
	MemoryMB     float64
	Confidence   float64
	// FallbacksUsed lists the backends that failed before this one answered.
	FallbacksUsed []string
	Pref          optimizer.Preference
	Target        optimizer.Target
	LoadedAt      time.Time

	handle backend.Backend
}

// Generate runs one completion on the session's backend.
func (s *Session) Generate(ctx context.Context, prompt string, gen backend.GenerationConfig) (string, error) {
	return s.handle.Generate(ctx, prompt, gen)
}

// Fingerprint returns the loaded model's cache key.
func (s *Session) Fingerprint() string { return s.Profile.Fingerprint }

// HardwareInfo reports what the live backend says about its own runtime.
func (s *Session) HardwareInfo(ctx context.Context) map[string]string {
	return s.handle.HardwareInfo(ctx)
}
