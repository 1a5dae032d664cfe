package recorder

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// writeScript drops an executable shell stub used in place of ffmpeg or
// ffprobe so the wrapper can be exercised without the real tools.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

func createTestJPEG(t *testing.T, width, height int, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create test image: %v", err)
	}
	defer file.Close()

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
}

func TestStartWait_Success(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeScript(t, dir, "ffmpeg",
		`for a; do dest="$a"; done
printf captured > "$dest"`)
	cap := New(ffmpeg, "ffprobe", zaptest.NewLogger(t))

	dest := filepath.Join(dir, "out.mkv")
	proc, err := cap.Start("http://example/stream", "00:00:05", dest)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	st := proc.Wait()
	if !st.Success() {
		t.Fatalf("expected success, got code %d: %s", st.Code, st.Output)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("output file missing: %v", err)
	}
}

func TestStartWait_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeScript(t, dir, "ffmpeg", `echo "stream unreachable" 1>&2
exit 1`)
	cap := New(ffmpeg, "ffprobe", zaptest.NewLogger(t))

	proc, err := cap.Start("http://example/stream", "00:00:05", filepath.Join(dir, "out.mkv"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	st := proc.Wait()
	if st.Success() || st.Code != 1 {
		t.Fatalf("expected exit 1, got %d", st.Code)
	}
	if !strings.Contains(st.Output, "stream unreachable") {
		t.Errorf("diagnostic output not captured: %q", st.Output)
	}
}

func TestStart_MissingBinary(t *testing.T) {
	cap := New("/nonexistent/ffmpeg", "ffprobe", zaptest.NewLogger(t))
	if _, err := cap.Start("http://example/stream", "00:00:05", "out.mkv"); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestTerminate_Graceful(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeScript(t, dir, "ffmpeg", `sleep 30`)
	cap := New(ffmpeg, "ffprobe", zaptest.NewLogger(t))

	proc, err := cap.Start("http://example/stream", "00:00:05", filepath.Join(dir, "out.mkv"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	start := time.Now()
	proc.Terminate()
	st := proc.Wait()

	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("terminate took too long: %v", elapsed)
	}
	if st.Success() {
		t.Fatal("terminated process must not report success")
	}
}

func TestTerminate_EscalatesToKill(t *testing.T) {
	dir := t.TempDir()
	// The stub ignores SIGTERM, forcing the kill escalation.
	ffmpeg := writeScript(t, dir, "ffmpeg", `trap '' TERM
sleep 30 &
wait $!`)
	cap := New(ffmpeg, "ffprobe", zaptest.NewLogger(t))

	proc, err := cap.Start("http://example/stream", "00:00:05", filepath.Join(dir, "out.mkv"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	start := time.Now()
	proc.Terminate()
	st := proc.Wait()

	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("kill escalation took too long: %v", elapsed)
	}
	if st.Success() {
		t.Fatal("killed process must not report success")
	}
}

func TestTerminate_AfterExitIsHarmless(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeScript(t, dir, "ffmpeg", `exit 0`)
	cap := New(ffmpeg, "ffprobe", zaptest.NewLogger(t))

	proc, err := cap.Start("http://example/stream", "00:00:05", filepath.Join(dir, "out.mkv"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	proc.Wait()

	proc.Terminate()
	proc.Terminate()
}

func TestWriteTitleTag_AtomicReplace(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeScript(t, dir, "ffmpeg",
		`for a; do dest="$a"; done
printf tagged > "$dest"`)
	cap := New(ffmpeg, "ffprobe", zaptest.NewLogger(t))

	video := filepath.Join(dir, "clip.mkv")
	if err := os.WriteFile(video, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := cap.WriteTitleTag(context.Background(), video, "My Title"); err != nil {
		t.Fatalf("WriteTitleTag failed: %v", err)
	}

	data, err := os.ReadFile(video)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "tagged" {
		t.Errorf("original not replaced, content: %q", data)
	}
	if _, err := os.Stat(video + ".tmp.mkv"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestWriteTitleTag_FailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeScript(t, dir, "ffmpeg", `exit 1`)
	cap := New(ffmpeg, "ffprobe", zaptest.NewLogger(t))

	video := filepath.Join(dir, "clip.mkv")
	if err := os.WriteFile(video, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := cap.WriteTitleTag(context.Background(), video, "My Title"); err == nil {
		t.Fatal("expected error")
	}

	data, _ := os.ReadFile(video)
	if string(data) != "original" {
		t.Errorf("original clobbered on failure: %q", data)
	}
	if _, err := os.Stat(video + ".tmp.mkv"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestExtractThumbnail_OffsetWithinMargins(t *testing.T) {
	dir := t.TempDir()
	frame := filepath.Join(dir, "frame.jpg")
	createTestJPEG(t, 800, 600, frame)

	argsFile := filepath.Join(dir, "args")
	ffmpeg := writeScript(t, dir, "ffmpeg",
		fmt.Sprintf(`echo "$@" > %q
for a; do dest="$a"; done
cp %q "$dest"`, argsFile, frame))
	ffprobe := writeScript(t, dir, "ffprobe", `echo 42.7`)
	cap := New(ffmpeg, ffprobe, zaptest.NewLogger(t))

	thumb := filepath.Join(dir, "thumb.jpg")
	if err := cap.ExtractThumbnail(context.Background(), filepath.Join(dir, "clip.mkv"), thumb); err != nil {
		t.Fatalf("ExtractThumbnail failed: %v", err)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	fields := strings.Fields(string(args))
	offset := -1
	for i, f := range fields {
		if f == "-ss" && i+1 < len(fields) {
			offset, _ = strconv.Atoi(fields[i+1])
		}
	}
	if offset < 5 || offset > 37 {
		t.Errorf("offset %d outside [5, 37] for a 42s clip", offset)
	}

	file, err := os.Open(thumb)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	img, err := jpeg.Decode(file)
	if err != nil {
		t.Fatalf("thumbnail is not a decodable JPEG: %v", err)
	}
	if img.Bounds().Dx() > 320 {
		t.Errorf("thumbnail too wide: %d", img.Bounds().Dx())
	}
}

func TestExtractThumbnail_ShortClipUsesFirstFrame(t *testing.T) {
	dir := t.TempDir()
	frame := filepath.Join(dir, "frame.jpg")
	createTestJPEG(t, 320, 180, frame)

	argsFile := filepath.Join(dir, "args")
	ffmpeg := writeScript(t, dir, "ffmpeg",
		fmt.Sprintf(`echo "$@" > %q
for a; do dest="$a"; done
cp %q "$dest"`, argsFile, frame))
	ffprobe := writeScript(t, dir, "ffprobe", `echo 8.2`)
	cap := New(ffmpeg, ffprobe, zaptest.NewLogger(t))

	thumb := filepath.Join(dir, "thumb.jpg")
	if err := cap.ExtractThumbnail(context.Background(), filepath.Join(dir, "clip.mkv"), thumb); err != nil {
		t.Fatalf("ExtractThumbnail failed: %v", err)
	}

	args, _ := os.ReadFile(argsFile)
	if !strings.Contains(string(args), "-ss 1 ") {
		t.Errorf("short clip must sample the first frame, args: %s", args)
	}
}

func TestExtractThumbnail_ProbeFailure(t *testing.T) {
	dir := t.TempDir()
	ffprobe := writeScript(t, dir, "ffprobe", `exit 1`)
	cap := New("ffmpeg", ffprobe, zaptest.NewLogger(t))

	err := cap.ExtractThumbnail(context.Background(), filepath.Join(dir, "clip.mkv"), filepath.Join(dir, "thumb.jpg"))
	if err == nil {
		t.Fatal("expected error when probing fails")
	}
}

func TestProbeDuration(t *testing.T) {
	dir := t.TempDir()
	ffprobe := writeScript(t, dir, "ffprobe", `echo 1800.04`)
	cap := New("ffmpeg", ffprobe, zaptest.NewLogger(t))

	dur, err := cap.ProbeDuration(context.Background(), "clip.mkv")
	if err != nil {
		t.Fatalf("ProbeDuration failed: %v", err)
	}
	if dur != 1800 {
		t.Errorf("expected 1800, got %d", dur)
	}
}
