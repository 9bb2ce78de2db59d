package dvr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// CaptureResult carries the outcome of one streamlink run for the attempt
// log.
type CaptureResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner abstracts the external tools the supervisor drives so the capture
// loop is testable without streamlink or ffmpeg installed.
type Runner interface {
	// Capture records a live stream to outputPath until the stream ends.
	Capture(ctx context.Context, streamURL, outputPath string) (CaptureResult, error)
	// Probe returns the container-reported duration in seconds.
	Probe(ctx context.Context, path string) (float64, error)
	// Remux rewrites a file with copied codecs to repair its metadata.
	Remux(ctx context.Context, inputPath, outputPath string) error
}

// ToolRunner drives the real streamlink, ffprobe, and ffmpeg binaries.
// Every child gets its own process group so a context cancellation can kill
// the tool and anything it spawned.
type ToolRunner struct{}

func (ToolRunner) Capture(ctx context.Context, streamURL, outputPath string) (CaptureResult, error) {
	args := []string{
		streamURL, "best",
		"-o", outputPath,
		"-f",
		"--hls-live-edge", "12",
		"--retry-open", "5",
		"--ringbuffer-size", "256M",
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "streamlink", args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return CaptureResult{}, fmt.Errorf("start streamlink: %w", err)
	}
	defer killGroup(cmd)

	err := cmd.Wait()
	res := CaptureResult{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	// A non-zero exit is normal when the stream dies; the attempt loop
	// judges success by the output file, not the exit code.
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return res, err
		}
	}
	return res, nil
}

func (ToolRunner) Probe(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, nil
	}
	return duration, nil
}

func (ToolRunner) Remux(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-i", inputPath, "-c", "copy", outputPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	defer killGroup(cmd)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg remux %s: %w", inputPath, err)
	}
	return nil
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
