package services

import (
	"image"
	"image/color"
	"testing"

	"github.com/pixelseek/pixelseek/internal/logger"
)

func makeFrames(n int) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = Frame{Path: "f", Timestamp: float64(i) * 2.0, Index: i}
	}
	return frames
}

func TestSampleScenesCapsAndKeepsEndpoints(t *testing.T) {
	frames := makeFrames(40)
	got := sampleScenes(frames, 15)

	if len(got) != 15 {
		t.Fatalf("len: want=15 got=%d", len(got))
	}
	if got[0].Timestamp != frames[0].Timestamp {
		t.Fatalf("first frame dropped: %+v", got[0])
	}
	if got[len(got)-1].Timestamp != frames[39].Timestamp {
		t.Fatalf("last frame dropped: %+v", got[len(got)-1])
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp <= got[i-1].Timestamp {
			t.Fatalf("timestamps not ascending at %d: %v then %v", i, got[i-1].Timestamp, got[i].Timestamp)
		}
		if got[i].Index != i {
			t.Fatalf("index not renumbered at %d: %d", i, got[i].Index)
		}
	}
}

func TestSampleScenesUnderCapIsUntouched(t *testing.T) {
	frames := makeFrames(7)
	got := sampleScenes(frames, 15)
	if len(got) != 7 {
		t.Fatalf("len: want=7 got=%d", len(got))
	}
}

func TestSampleScenesSingleSlot(t *testing.T) {
	got := sampleScenes(makeFrames(10), 1)
	if len(got) != 1 || got[0].Timestamp != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestParseShowinfoTimestamps(t *testing.T) {
	stderr := `[Parsed_showinfo_1 @ 0x55] n:   0 pts:  12800 pts_time:0.512   duration:...
[Parsed_showinfo_1 @ 0x55] n:   1 pts:  64000 pts_time:2.56    duration:...
[Parsed_showinfo_1 @ 0x55] n:   2 pts: 128000 pts_time:5.12    duration:...`
	ts := parseShowinfoTimestamps(stderr)
	if len(ts) != 3 {
		t.Fatalf("len: want=3 got=%d", len(ts))
	}
	if ts[0] != 0.512 || ts[1] != 2.56 || ts[2] != 5.12 {
		t.Fatalf("timestamps: %v", ts)
	}
}

func TestDominantColorsTwoColorImage(t *testing.T) {
	// Left three quarters red, right quarter blue.
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			if x < 30 {
				img.Set(x, y, color.RGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.RGBA{B: 255, A: 255})
			}
		}
	}

	shares := dominantColors(img, 5)
	if len(shares) < 2 {
		t.Fatalf("expected at least two clusters, got %+v", shares)
	}
	if shares[0].Color != "#ff0000" {
		t.Fatalf("dominant color: want=#ff0000 got=%s", shares[0].Color)
	}
	if shares[0].Percentage < 70 || shares[0].Percentage > 80 {
		t.Fatalf("dominant share: %v", shares[0].Percentage)
	}
	for i := 1; i < len(shares); i++ {
		if shares[i].Percentage > shares[i-1].Percentage {
			t.Fatalf("shares not sorted descending: %+v", shares)
		}
	}
}

func TestDominantColorsUnreadablePathFailsClosed(t *testing.T) {
	svc := NewMediaToolsService(logger.NewNop())
	if got := svc.DominantColors("/nonexistent/frame.jpg", 5); len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}

func TestDominantColorsDeterministic(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 12), G: uint8(y * 12), B: 128, A: 255})
		}
	}
	a := dominantColors(img, 5)
	b := dominantColors(img, 5)
	if len(a) != len(b) {
		t.Fatalf("run lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("runs differ at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}
