package hardware

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeMeminfo = "MemTotal:       32768000 kB\nMemFree:         1000000 kB\nMemAvailable:   16384000 kB\n"

// stubDetector returns a Detector whose probes are backed by the given
// command outputs instead of real executables.
func stubDetector(t *testing.T, goos string, outputs map[string]string) *Detector {
	t.Helper()
	d := New(Config{}, zerolog.Nop())
	d.goos = goos
	d.numCPU = func() int { return 16 }
	d.readFile = func(path string) ([]byte, error) {
		if path == "/proc/meminfo" {
			return []byte(fakeMeminfo), nil
		}
		return nil, fmt.Errorf("unexpected read: %s", path)
	}
	d.run = func(_ context.Context, name string, _ ...string) (string, error) {
		out, ok := outputs[name]
		if !ok {
			return "", fmt.Errorf("%s: command not found", name)
		}
		return out, nil
	}
	return d
}

func TestDetectNvidia(t *testing.T) {
	d := stubDetector(t, "linux", map[string]string{
		"nvidia-smi": "0, NVIDIA GeForce RTX 3060, 12288, 11020, 550.54.14, 8.6\n",
	})
	info := d.Detect(context.Background())

	require.Equal(t, 1, info.GPUCount)
	g := info.GPUs[0]
	assert.Equal(t, "NVIDIA GeForce RTX 3060", g.Name)
	assert.Equal(t, VendorNVIDIA, g.Vendor)
	assert.Equal(t, 12288, g.VRAMMB)
	assert.Equal(t, 11020, g.FreeVRAMMB)
	assert.Equal(t, "550.54.14", g.DriverVersion)
	assert.Equal(t, "8.6", g.ComputeCapability)
	assert.Equal(t, 12288, info.TotalVRAMMB)
	assert.Equal(t, 16, info.CPUCores)
	assert.Equal(t, 32000, info.TotalRAMMB)
	assert.Equal(t, 16000, info.AvailableRAMMB)
	assert.Equal(t, "llamacpp", info.RecommendedBackend)
	assert.True(t, info.HasGPU())
}

func TestDetectMultiGPU(t *testing.T) {
	d := stubDetector(t, "linux", map[string]string{
		"nvidia-smi": "0, RTX 4090, 24564, 24000, 550.54.14\n1, RTX 4090, 24564, 23500, 550.54.14\n",
	})
	info := d.Detect(context.Background())
	require.Equal(t, 2, info.GPUCount)
	assert.Equal(t, 49128, info.TotalVRAMMB)
	assert.Equal(t, 47500, info.FreeVRAMMB)
}

func TestDetectROCmFallback(t *testing.T) {
	d := stubDetector(t, "linux", map[string]string{
		"rocm-smi": "device,VRAM Total Memory (B),VRAM Total Used Memory (B)\ncard0,17163091968,305135616\n",
	})
	info := d.Detect(context.Background())
	require.Equal(t, 1, info.GPUCount)
	assert.Equal(t, VendorAMD, info.GPUs[0].Vendor)
	assert.Equal(t, 16368, info.GPUs[0].VRAMMB)
	assert.Equal(t, "llamacpp", info.RecommendedBackend)
}

func TestDetectLspciLastResort(t *testing.T) {
	d := stubDetector(t, "linux", map[string]string{
		"lspci": "00:02.0 VGA compatible controller: Intel Corporation UHD Graphics 630\n00:1f.3 Audio device: Intel Corporation\n",
	})
	info := d.Detect(context.Background())
	require.Equal(t, 1, info.GPUCount)
	assert.Equal(t, VendorIntel, info.GPUs[0].Vendor)
	// lspci cannot report VRAM, so the device does not count as usable GPU.
	assert.False(t, info.HasGPU())
}

func TestDetectDegradesToCPUOnly(t *testing.T) {
	d := stubDetector(t, "linux", map[string]string{})
	info := d.Detect(context.Background())

	assert.Equal(t, 0, info.GPUCount)
	assert.Equal(t, 0, info.TotalVRAMMB)
	assert.False(t, info.HasGPU())
	assert.Equal(t, "llamafile", info.RecommendedBackend)
	// RAM probe is independent of GPU probes.
	assert.Equal(t, 32000, info.TotalRAMMB)
}

func TestDetectDarwinUnifiedMemory(t *testing.T) {
	d := stubDetector(t, "darwin", map[string]string{
		"sysctl": "34359738368\n",
	})
	info := d.Detect(context.Background())

	require.Equal(t, 1, info.GPUCount)
	assert.Equal(t, VendorApple, info.GPUs[0].Vendor)
	assert.Equal(t, 32768, info.TotalRAMMB)
	assert.Equal(t, 32768*3/4, info.GPUs[0].VRAMMB)
	assert.Equal(t, "llamacpp", info.RecommendedBackend)
}

func TestDetectIsIdempotent(t *testing.T) {
	d := stubDetector(t, "linux", map[string]string{
		"nvidia-smi": "0, RTX 3060, 12288, 11020, 550.54.14\n",
	})
	a := d.Detect(context.Background())
	b := d.Detect(context.Background())
	a.DetectedAt = b.DetectedAt
	assert.Equal(t, a, b)
}

func TestAvailableRAMMBSkipsGPUProbes(t *testing.T) {
	d := stubDetector(t, "linux", map[string]string{})
	d.run = func(_ context.Context, name string, _ ...string) (string, error) {
		t.Fatalf("unexpected command: %s", name)
		return "", nil
	}
	assert.Equal(t, 16000, d.AvailableRAMMB(context.Background()))
}

func TestParseNvidiaCSVSkipsGarbage(t *testing.T) {
	gpus := parseNvidiaCSV("not,a,gpu\n\n0, RTX 3060, 12288, 11000, 550.54.14\nbad line\n")
	require.Len(t, gpus, 1)
	assert.Equal(t, 12288, gpus[0].VRAMMB)
	// Five-column rows from drivers without compute_cap still parse.
	assert.Empty(t, gpus[0].ComputeCapability)
}

func TestParseMeminfo(t *testing.T) {
	total, avail := parseMeminfo(fakeMeminfo)
	assert.Equal(t, 32000, total)
	assert.Equal(t, 16000, avail)

	total, avail = parseMeminfo("garbage\n")
	assert.Zero(t, total)
	assert.Zero(t, avail)
}
