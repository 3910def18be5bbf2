package localmedia

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/podreach-backend/internal/pkg/ctxutil"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

// Tools wraps ffmpeg/ffprobe for the transcription worker.
//
// REQUIRED BINARIES in worker runtime: ffmpeg, ffprobe.
type Tools interface {
	AssertReady(ctx context.Context) error

	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
	ConvertAudio(ctx context.Context, inPath string, outPath string, opts AudioOptions) (string, error)
	SplitAudio(ctx context.Context, inPath string, outDir string, chunk time.Duration, opts AudioOptions) ([]Chunk, error)

	// WorkDir creates a scratch directory removed by the returned cleanup.
	WorkDir(prefix string) (string, func(), error)
}

type AudioOptions struct {
	SampleRateHz int
	Channels     int
	Format       string // "flac" or "wav"
}

// Chunk is one piece of a split file; Offset is its start within the original.
type Chunk struct {
	Index  int
	Path   string
	Offset time.Duration
}

type tools struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string
	workRoot    string

	defaultTimeout time.Duration
}

func New(log *logger.Logger, workRoot string) Tools {
	if strings.TrimSpace(workRoot) == "" {
		workRoot = filepath.Join(os.TempDir(), "podreach-media")
	}
	return &tools{
		log:            log.With("service", "MediaTools"),
		ffmpegPath:     "ffmpeg",
		ffprobePath:    "ffprobe",
		workRoot:       workRoot,
		defaultTimeout: 20 * time.Minute,
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
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

func (m *tools) WorkDir(prefix string) (string, func(), error) {
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	dir, err := os.MkdirTemp(m.workRoot, prefix+"-")
	if err != nil {
		return "", func() {}, err
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func (m *tools) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), time.Minute)
	defer cancel()
	out, err := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	return ParseProbeDuration(string(out))
}

// ParseProbeDuration reads ffprobe's seconds output, e.g. "3541.227000".
func ParseProbeDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("unparseable duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (o AudioOptions) normalized() (AudioOptions, error) {
	if o.SampleRateHz <= 0 {
		o.SampleRateHz = 16000
	}
	if o.Channels <= 0 {
		o.Channels = 1
	}
	o.Format = strings.ToLower(strings.TrimSpace(o.Format))
	if o.Format == "" {
		o.Format = "flac"
	}
	if o.Format != "wav" && o.Format != "flac" {
		return o, fmt.Errorf("unsupported audio format: %s", o.Format)
	}
	return o, nil
}

func (m *tools) ConvertAudio(ctx context.Context, inPath string, outPath string, opts AudioOptions) (string, error) {
	opts, err := opts.normalized()
	if err != nil {
		return "", err
	}
	if inPath == "" || outPath == "" {
		return "", fmt.Errorf("inPath and outPath required")
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), m.defaultTimeout)
	defer cancel()

	args := []string{
		"-y", "-i", inPath, "-vn",
		"-ac", strconv.Itoa(opts.Channels),
		"-ar", strconv.Itoa(opts.SampleRateHz),
		"-f", opts.Format, outPath,
	}
	if out, err := exec.CommandContext(ctx, m.ffmpegPath, args...).CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg convert failed: %w; out=%s", err, tail(out))
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("audio output missing at %s", outPath)
	}
	return outPath, nil
}

func (m *tools) SplitAudio(ctx context.Context, inPath string, outDir string, chunk time.Duration, opts AudioOptions) ([]Chunk, error) {
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	if chunk <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir outDir: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), m.defaultTimeout)
	defer cancel()

	pattern := filepath.Join(outDir, "chunk_%03d."+opts.Format)
	args := []string{
		"-y", "-i", inPath, "-vn",
		"-ac", strconv.Itoa(opts.Channels),
		"-ar", strconv.Itoa(opts.SampleRateHz),
		"-f", "segment",
		"-segment_time", strconv.Itoa(int(chunk.Seconds())),
		"-reset_timestamps", "1",
		pattern,
	}
	if out, err := exec.CommandContext(ctx, m.ffmpegPath, args...).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg segment failed: %w; out=%s", err, tail(out))
	}
	paths, err := globSorted(outDir, `^chunk_\d+\.`+opts.Format+`$`)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no chunks for %s", inPath)
	}
	chunks := make([]Chunk, len(paths))
	for i, p := range paths {
		chunks[i] = Chunk{Index: i, Path: p, Offset: time.Duration(i) * chunk}
	}
	m.log.Debug("Split audio", "input", inPath, "chunks", len(chunks))
	return chunks, nil
}

func tail(b []byte) string {
	const n = 600
	if len(b) > n {
		return string(b[len(b)-n:])
	}
	return string(b)
}

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
