// Command agpuprobe opens a device and checks host/device transfers on it.
//
// Several workers upload patterns into their own buffers and read them
// back concurrently, then an image is round-tripped through a texture.
// The exit status is non-zero if any byte comes back different.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/allbackends"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/agpu"
	_ "github.com/gogpu/agpu/backend/gl"
	_ "github.com/gogpu/agpu/backend/software"
	_ "github.com/gogpu/agpu/backend/wgpu"
	"github.com/gogpu/agpu/gpucore"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML device configuration")
		backendArg = flag.String("backend", "", "backend name (default: best available)")
		adapter    = flag.String("adapter", "", "native adapter for the wgpu backend")
		size       = flag.Uint64("size", 1<<20, "buffer size in bytes")
		workers    = flag.Int("workers", 4, "concurrent buffer workers")
		iterations = flag.Int("iterations", 8, "round trips per worker")
		texSize    = flag.Uint("texture", 256, "texture edge in texels, 0 to skip")
		verbose    = flag.Bool("v", false, "log transfer details")
	)
	flag.Parse()

	cfg := agpu.Config{}
	if *configPath != "" {
		var err error
		if cfg, err = agpu.LoadConfig(*configPath); err != nil {
			fatal(err)
		}
	}
	if *backendArg != "" {
		cfg.Backend = *backendArg
	}
	if *adapter != "" {
		cfg.Adapter = *adapter
	}
	level, err := cfg.Level()
	if err != nil {
		fatal(err)
	}
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	agpu.SetLogger(logger)

	d, err := agpu.OpenConfig(cfg)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = d.Close() }()
	info := d.AdapterInfo()
	logger.Info("device", "adapter", info.Name, "type", info.Type, "variant", d.Variant())

	start := time.Now()
	if err := probeBuffers(context.Background(), d, *size, *workers, *iterations); err != nil {
		fatal(err)
	}
	logger.Info("buffers ok", "workers", *workers, "iterations", *iterations, "bytes", *size, "elapsed", time.Since(start))

	if *texSize > 0 {
		if err := probeTexture(d, uint32(*texSize)); err != nil {
			fatal(err)
		}
		logger.Info("texture ok", "edge", *texSize)
	}

	st := d.Stats()
	logger.Info("stats",
		"upload_submissions", st.Transfer.Upload.Submissions,
		"readback_submissions", st.Transfer.Readback.Submissions,
		"upload_staging", st.Transfer.Upload.StagingCapacity,
		"readback_staging", st.Transfer.Readback.StagingCapacity,
		"live", st.LiveResources)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "agpuprobe: %v\n", err)
	os.Exit(1)
}

// probeBuffers runs the workers until all finish or one fails.
func probeBuffers(ctx context.Context, d *agpu.Device, size uint64, workers, iterations int) error {
	g, ctx := errgroup.WithContext(ctx)
	for w := range workers {
		g.Go(func() error {
			buf, err := d.CreateBuffer(&agpu.BufferDescription{
				Label:         fmt.Sprintf("probe-%d", w),
				Size:          size,
				Heap:          gpucore.HeapDeviceLocal,
				AllowedUsages: gpucore.BufferUsageVertex | gpucore.BufferUsageIndex,
				MappingFlags:  gpucore.MapDynamicStorage | gpucore.MapRead,
			}, nil)
			if err != nil {
				return err
			}
			defer buf.Release()

			want := make([]byte, size)
			got := make([]byte, size)
			for i := range iterations {
				if err := ctx.Err(); err != nil {
					return err
				}
				for j := range want {
					want[j] = byte(j*31 + i + w*7)
				}
				if err := buf.UploadData(0, want); err != nil {
					return fmt.Errorf("worker %d iteration %d: %w", w, i, err)
				}
				if err := buf.ReadData(0, got); err != nil {
					return fmt.Errorf("worker %d iteration %d: %w", w, i, err)
				}
				if !bytes.Equal(got, want) {
					return fmt.Errorf("worker %d iteration %d: readback mismatch", w, i)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// probeTexture round-trips a gradient through an RGBA texture.
func probeTexture(d *agpu.Device, edge uint32) error {
	tex, err := d.CreateTexture(&agpu.TextureDescription{
		Label:         "probe",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Width:         edge,
		Height:        edge,
		AllowedUsages: gpucore.TextureUsageSampled,
		Flags:         gpucore.TextureFlagUploaded | gpucore.TextureFlagReadback,
	})
	if err != nil {
		return err
	}
	defer tex.Release()

	src := image.NewNRGBA(image.Rect(0, 0, int(edge), int(edge)))
	for y := range int(edge) {
		for x := range int(edge) {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 0xff})
		}
	}
	if err := tex.UploadImage(0, 0, src); err != nil {
		return err
	}
	got, err := tex.ReadImage(0, 0)
	if err != nil {
		return err
	}
	if !bytes.Equal(got.Pix, src.Pix) {
		return fmt.Errorf("texture readback mismatch")
	}
	return nil
}
