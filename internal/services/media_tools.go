package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/pixelseek/pixelseek/internal/logger"
	"github.com/pixelseek/pixelseek/internal/types"
)

// MediaToolsService is the glue around system binaries:
//
// REQUIRED BINARIES in worker runtime:
// - ffmpeg for keyframe extraction
// - ffprobe for duration probing
//
// This service is synchronous and deterministic, but should be called from
// worker jobs, not request handlers.
type MediaToolsService interface {
	AssertReady(ctx context.Context) error

	ExtractKeyframes(ctx context.Context, videoPath string, outDir string, opts KeyframeOptions) ([]Frame, error)
	DominantColors(imagePath string, k int) []types.ColorShare
	ReadImageBytes(path string) ([]byte, error)

	// Helper for callers who only have bytes:
	WriteTempFile(data []byte, suffix string) (string, func(), error)
}

// Frame is one extracted keyframe image with its position in the video.
type Frame struct {
	Path      string
	Timestamp float64
	Index     int
}

type KeyframeStrategy string

const (
	StrategyContent KeyframeStrategy = "content"
	StrategyUniform KeyframeStrategy = "uniform"
)

type KeyframeOptions struct {
	// Strategy selects scene-change detection (content) or evenly spaced
	// sampling (uniform). Content falls back to uniform when scene
	// detection yields nothing usable.
	Strategy KeyframeStrategy
	// SceneThreshold for content mode, e.g. 0.35. Zero means the default.
	SceneThreshold float64
	// MaxFrames caps the result. Zero means the default of 15.
	MaxFrames int
	// Width scales frames keeping aspect; 0 keeps the original size.
	Width int
}

const (
	defaultMaxFrames      = 15
	defaultSceneThreshold = 0.35
	defaultColorClusters  = 5
	maxIndexImageDim      = 1024
	indexJPEGQuality      = 85
)

type mediaToolsService struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string

	workRoot string

	defaultTimeout time.Duration
}

func NewMediaToolsService(log *logger.Logger) MediaToolsService {
	return &mediaToolsService{
		log:            log.With("service", "MediaToolsService"),
		ffmpegPath:     "ffmpeg",
		ffprobePath:    "ffprobe",
		workRoot:       "/tmp/pixelseek-media",
		defaultTimeout: 10 * time.Minute,
	}
}

func (m *mediaToolsService) AssertReady(ctx context.Context) error {
	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (m *mediaToolsService) WriteTempFile(data []byte, suffix string) (string, func(), error) {
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	f, err := os.CreateTemp(m.workRoot, "blob-*"+suffix)
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", func() {}, fmt.Errorf("close temp file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }
	return path, cleanup, nil
}

// ExtractKeyframes pulls representative frames out of a video. Content mode
// selects scene changes and down-samples to MaxFrames keeping the first and
// last scene; uniform mode spaces frames evenly across the duration.
func (m *mediaToolsService) ExtractKeyframes(ctx context.Context, videoPath string, outDir string, opts KeyframeOptions) ([]Frame, error) {
	ctx = defaultCtx(ctx)
	if videoPath == "" {
		return nil, fmt.Errorf("videoPath required")
	}
	if outDir == "" {
		return nil, fmt.Errorf("outDir required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir outDir: %w", err)
	}

	maxFrames := opts.MaxFrames
	if maxFrames <= 0 {
		maxFrames = defaultMaxFrames
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyContent
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	if strategy == StrategyContent {
		frames, err := m.extractSceneFrames(ctx, videoPath, outDir, opts)
		if err != nil {
			return nil, err
		}
		if len(frames) > 0 {
			return sampleScenes(frames, maxFrames), nil
		}
		// Static footage produces no scene changes; fall back to uniform.
		m.log.Info("no scene changes detected, falling back to uniform sampling", "video", videoPath)
	}
	return m.extractUniformFrames(ctx, videoPath, outDir, opts, maxFrames)
}

func (m *mediaToolsService) extractSceneFrames(ctx context.Context, videoPath, outDir string, opts KeyframeOptions) ([]Frame, error) {
	threshold := opts.SceneThreshold
	if threshold <= 0 {
		threshold = defaultSceneThreshold
	}

	vf := fmt.Sprintf("select='gt(scene\\,%0.3f)',showinfo", threshold)
	if opts.Width > 0 {
		vf = vf + fmt.Sprintf(",scale=%d:-1", opts.Width)
	}
	outPattern := filepath.Join(outDir, "frame_%06d.jpg")
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-vf", vf,
		"-vsync", "vfr",
		"-q:v", "3",
		outPattern,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg scene detect failed: %w; out=%s", err, string(out))
	}

	paths, err := globSorted(outDir, `^frame_\d+\.jpg$`)
	if err != nil {
		return nil, err
	}
	timestamps := parseShowinfoTimestamps(string(out))

	frames := make([]Frame, len(paths))
	for i, p := range paths {
		frames[i] = Frame{Path: p, Index: i}
		if i < len(timestamps) {
			frames[i].Timestamp = timestamps[i]
		}
	}
	return frames, nil
}

func (m *mediaToolsService) extractUniformFrames(ctx context.Context, videoPath, outDir string, opts KeyframeOptions, maxFrames int) ([]Frame, error) {
	duration, err := m.probeDuration(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, fmt.Errorf("video has no measurable duration: %s", videoPath)
	}

	vf := fmt.Sprintf("fps=%0.6f", float64(maxFrames)/duration)
	if opts.Width > 0 {
		vf = vf + fmt.Sprintf(",scale=%d:-1", opts.Width)
	}
	outPattern := filepath.Join(outDir, "uframe_%06d.jpg")
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-vf", vf,
		"-q:v", "3",
		outPattern,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg uniform sampling failed: %w; out=%s", err, string(out))
	}

	paths, err := globSorted(outDir, `^uframe_\d+\.jpg$`)
	if err != nil {
		return nil, err
	}
	if len(paths) > maxFrames {
		paths = paths[:maxFrames]
	}
	step := duration / float64(maxFrames)
	frames := make([]Frame, len(paths))
	for i, p := range paths {
		frames[i] = Frame{Path: p, Timestamp: float64(i) * step, Index: i}
	}
	return frames, nil
}

func (m *mediaToolsService) probeDuration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration failed: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return d, nil
}

var showinfoPtsRe = regexp.MustCompile(`pts_time:([0-9]+(?:\.[0-9]+)?)`)

func parseShowinfoTimestamps(ffmpegOutput string) []float64 {
	matches := showinfoPtsRe.FindAllStringSubmatch(ffmpegOutput, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		if ts, err := strconv.ParseFloat(m[1], 64); err == nil {
			out = append(out, ts)
		}
	}
	return out
}

// sampleScenes down-samples detected scene frames to at most maxFrames,
// always keeping the first and last scene and striding evenly through the
// middle. Frame indexes are renumbered on the result.
func sampleScenes(frames []Frame, maxFrames int) []Frame {
	if maxFrames <= 0 || len(frames) <= maxFrames {
		return renumber(frames)
	}
	if maxFrames == 1 {
		return renumber(frames[:1])
	}

	out := make([]Frame, 0, maxFrames)
	out = append(out, frames[0])
	middle := frames[1 : len(frames)-1]
	slots := maxFrames - 2
	if slots > 0 && len(middle) > 0 {
		stride := len(middle) / slots
		if stride < 1 {
			stride = 1
		}
		for i := 0; i < len(middle) && len(out) < maxFrames-1; i += stride {
			out = append(out, middle[i])
		}
	}
	out = append(out, frames[len(frames)-1])
	return renumber(out)
}

func renumber(frames []Frame) []Frame {
	for i := range frames {
		frames[i].Index = i
	}
	return frames
}

// DominantColors clusters the pixels of an image into k dominant colors and
// returns them ordered by share, largest first. Color extraction is a
// best-effort enrichment: any failure yields an empty result, never an error.
func (m *mediaToolsService) DominantColors(imagePath string, k int) []types.ColorShare {
	if k <= 0 {
		k = defaultColorClusters
	}
	f, err := os.Open(imagePath)
	if err != nil {
		m.log.Warn("color extraction skipped, cannot open image", "path", imagePath, "error", err)
		return nil
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		m.log.Warn("color extraction skipped, cannot decode image", "path", imagePath, "error", err)
		return nil
	}
	return dominantColors(img, k)
}

type rgb struct{ r, g, b float64 }

// dominantColors runs a small deterministic k-means over a downscaled copy
// of the image. Centroids are seeded from evenly spaced pixels so repeated
// runs on the same image give the same palette.
func dominantColors(img image.Image, k int) []types.ColorShare {
	small := downscale(img, 64)
	bounds := small.Bounds()

	pixels := make([]rgb, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := small.At(x, y).RGBA()
			pixels = append(pixels, rgb{float64(r >> 8), float64(g >> 8), float64(b >> 8)})
		}
	}
	if len(pixels) == 0 {
		return nil
	}
	if k > len(pixels) {
		k = len(pixels)
	}

	centroids := make([]rgb, k)
	for i := range centroids {
		centroids[i] = pixels[i*len(pixels)/k]
	}

	assignments := make([]int, len(pixels))
	for iter := 0; iter < 10; iter++ {
		changed := false
		for i, p := range pixels {
			best, bestDist := 0, math.MaxFloat64
			for c, ct := range centroids {
				d := sqDist(p, ct)
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		sums := make([]rgb, k)
		counts := make([]int, k)
		for i, p := range pixels {
			c := assignments[i]
			sums[c].r += p.r
			sums[c].g += p.g
			sums[c].b += p.b
			counts[c]++
		}
		for c := range centroids {
			if counts[c] > 0 {
				centroids[c] = rgb{sums[c].r / float64(counts[c]), sums[c].g / float64(counts[c]), sums[c].b / float64(counts[c])}
			}
		}
	}

	counts := make([]int, k)
	for _, c := range assignments {
		counts[c]++
	}
	total := float64(len(pixels))

	shares := make([]types.ColorShare, 0, k)
	for c, ct := range centroids {
		if counts[c] == 0 {
			continue
		}
		shares = append(shares, types.ColorShare{
			Color:      fmt.Sprintf("#%02x%02x%02x", int(ct.r+0.5), int(ct.g+0.5), int(ct.b+0.5)),
			Percentage: math.Round(float64(counts[c])/total*10000) / 100,
		})
	}
	sort.SliceStable(shares, func(i, j int) bool { return shares[i].Percentage > shares[j].Percentage })
	return shares
}

func sqDist(a, b rgb) float64 {
	dr, dg, db := a.r-b.r, a.g-b.g, a.b-b.b
	return dr*dr + dg*dg + db*db
}

func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	scale := float64(maxDim) / float64(max(w, h))
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

// ReadImageBytes loads an image and re-encodes it as JPEG, downscaling so
// the longest side is at most 1024px. Keeps embedding requests small.
func (m *mediaToolsService) ReadImageBytes(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	img = downscale(img, maxIndexImageDim)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: indexJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// ---------- helpers ----------

func globSorted(dir string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if re.MatchString(strings.ToLower(e.Name())) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func defaultCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
