package hardware

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
)

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

// detectGPUs walks vendor probes in order and stops at the first that yields
// devices: Apple unified memory on darwin, then nvidia-smi, rocm-smi and an
// lspci scan on everything else. Probe failure is a warning, never an error.
func (d *Detector) detectGPUs(ctx context.Context, totalRAMMB int) []GPUDevice {
	if d.goos == "darwin" {
		// Modern macOS always has Metal; the GPU shares system memory.
		// llama.cpp's recommended working set is about three quarters of it.
		vram := totalRAMMB * 3 / 4
		return []GPUDevice{{
			Index:      0,
			Name:       "Apple Silicon",
			Vendor:     VendorApple,
			VRAMMB:     vram,
			FreeVRAMMB: vram,
		}}
	}

	if gpus := d.probeNvidia(ctx); len(gpus) > 0 {
		return gpus
	}
	if gpus := d.probeROCm(ctx); len(gpus) > 0 {
		return gpus
	}
	if gpus := d.probeLspci(ctx); len(gpus) > 0 {
		return gpus
	}
	d.log.Warn().Msg("no GPU detected, reporting CPU-only hardware")
	return nil
}

func (d *Detector) probeNvidia(ctx context.Context) []GPUDevice {
	pctx, cancel := d.probeCtx(ctx)
	defer cancel()
	out, err := d.run(pctx, "nvidia-smi",
		"--query-gpu=index,name,memory.total,memory.free,driver_version,compute_cap",
		"--format=csv,noheader,nounits")
	if err != nil {
		d.log.Debug().Err(err).Msg("nvidia-smi probe failed")
		return nil
	}
	return parseNvidiaCSV(out)
}

func parseNvidiaCSV(out string) []GPUDevice {
	var gpus []GPUDevice
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(line, ",")
		if len(parts) < 5 {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			continue
		}
		total, _ := strconv.Atoi(strings.TrimSpace(parts[2]))
		free, _ := strconv.Atoi(strings.TrimSpace(parts[3]))
		if total <= 0 {
			continue
		}
		g := GPUDevice{
			Index:         idx,
			Name:          strings.TrimSpace(parts[1]),
			Vendor:        VendorNVIDIA,
			VRAMMB:        total,
			FreeVRAMMB:    free,
			DriverVersion: strings.TrimSpace(parts[4]),
		}
		// Older drivers do not know compute_cap; the column is optional.
		if len(parts) >= 6 {
			g.ComputeCapability = strings.TrimSpace(parts[5])
		}
		gpus = append(gpus, g)
	}
	return gpus
}

func (d *Detector) probeROCm(ctx context.Context) []GPUDevice {
	pctx, cancel := d.probeCtx(ctx)
	defer cancel()
	out, err := d.run(pctx, "rocm-smi", "--showmeminfo", "vram", "--csv")
	if err != nil {
		d.log.Debug().Err(err).Msg("rocm-smi probe failed")
		return nil
	}
	return parseROCmCSV(out)
}

// parseROCmCSV reads "device,VRAM Total Memory (B),VRAM Total Used Memory (B)"
// rows. Sizes are bytes.
func parseROCmCSV(out string) []GPUDevice {
	var gpus []GPUDevice
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(line, ",")
		if len(parts) < 2 || !strings.HasPrefix(strings.TrimSpace(parts[0]), "card") {
			continue
		}
		total, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil || total <= 0 {
			continue
		}
		var used int64
		if len(parts) >= 3 {
			used, _ = strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
		}
		totalMB := int(total / (1024 * 1024))
		gpus = append(gpus, GPUDevice{
			Index:      len(gpus),
			Name:       strings.TrimSpace(parts[0]),
			Vendor:     VendorAMD,
			VRAMMB:     totalMB,
			FreeVRAMMB: int((total - used) / (1024 * 1024)),
		})
	}
	return gpus
}

// probeLspci is the last resort: it identifies a GPU's vendor but not its
// VRAM, so devices come back with VRAMMB=0 and count as CPU-only for fitting.
func (d *Detector) probeLspci(ctx context.Context) []GPUDevice {
	pctx, cancel := d.probeCtx(ctx)
	defer cancel()
	out, err := d.run(pctx, "lspci")
	if err != nil {
		d.log.Debug().Err(err).Msg("lspci probe failed")
		return nil
	}
	var gpus []GPUDevice
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "vga compatible controller") && !strings.Contains(lower, "3d controller") {
			continue
		}
		vendor := VendorUnknown
		switch {
		case strings.Contains(lower, "nvidia"):
			vendor = VendorNVIDIA
		case strings.Contains(lower, "amd"), strings.Contains(lower, "ati"), strings.Contains(lower, "radeon"):
			vendor = VendorAMD
		case strings.Contains(lower, "intel"):
			vendor = VendorIntel
		}
		gpus = append(gpus, GPUDevice{
			Index:  len(gpus),
			Name:   strings.TrimSpace(line),
			Vendor: vendor,
		})
	}
	return gpus
}

// detectRAM returns (total, available) in MB, zero on failure.
func (d *Detector) detectRAM(ctx context.Context) (int, int) {
	switch d.goos {
	case "linux":
		b, err := d.readFile("/proc/meminfo")
		if err != nil {
			d.log.Warn().Err(err).Msg("reading /proc/meminfo failed")
			return 0, 0
		}
		return parseMeminfo(string(b))
	case "darwin":
		pctx, cancel := d.probeCtx(ctx)
		defer cancel()
		out, err := d.run(pctx, "sysctl", "-n", "hw.memsize")
		if err != nil {
			d.log.Warn().Err(err).Msg("sysctl hw.memsize failed")
			return 0, 0
		}
		bytes, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
		if err != nil {
			return 0, 0
		}
		total := int(bytes / (1024 * 1024))
		// No cheap MemAvailable equivalent; assume three quarters free.
		return total, total * 3 / 4
	default:
		d.log.Warn().Str("goos", d.goos).Msg("no RAM probe for platform")
		return 0, 0
	}
}

// parseMeminfo extracts MemTotal and MemAvailable (kB rows) in MB.
func parseMeminfo(s string) (total, available int) {
	for _, line := range strings.Split(s, "\n") {
		var dst *int
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			dst = &total
		case strings.HasPrefix(line, "MemAvailable:"):
			dst = &available
		default:
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			if kb, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				*dst = int(kb / 1024)
			}
		}
	}
	return total, available
}
