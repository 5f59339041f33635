//go:build llama

package backend

// cgo link directives for the in-process llama backend.
// - rpath $ORIGIN lets the runtime loader find libllama.so and libggml*.so
//   next to the built binary (./bin).
// - -L${SRCDIR}/../../bin points the linker at libllama.so when building
//   the 'llama' variant. No environment variables required.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
