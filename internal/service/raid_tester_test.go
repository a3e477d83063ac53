package service_test

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/zzenonn/zraid/internal/domain"
	"github.com/zzenonn/zraid/internal/service"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 3), G: uint8(y * 5), B: uint8(x ^ y), A: 0xff})
		}
	}
	return img
}

func TestRAIDTester_RunTests(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "results")

	writePNG(t, filepath.Join(in, "rgb.png"), gradient(31, 17))

	gray := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i)
	}
	writePNG(t, filepath.Join(in, "gray.PNG"), gray)

	jf, err := os.Create(filepath.Join(in, "photo.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(jf, gradient(20, 20), nil); err != nil {
		t.Fatal(err)
	}
	jf.Close()

	// Not an image by extension, and a broken image.
	os.WriteFile(filepath.Join(in, "notes.txt"), []byte("skip me"), 0o644)
	os.WriteFile(filepath.Join(in, "broken.png"), []byte("not a png"), 0o644)

	tester := service.NewRAIDTester(out, 1.0, true, nil)
	results, err := tester.RunTests(context.Background(), in)
	if err != nil {
		t.Fatalf("RunTests failed: %v", err)
	}

	want := service.Results{
		RAID5: service.ModeResult{Success: 3, Failed: 1},
		RAID6: service.ModeResult{Success: 3, Failed: 1},
	}
	if results != want {
		t.Errorf("RunTests() = %+v, want %+v", results, want)
	}

	for _, name := range []string{"raid5_recovered_rgb.png", "raid6_recovered_rgb.png", "raid6_recovered_gray.png", "raid5_recovered_photo.png"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("expected %s in output dir: %v", name, err)
		}
	}
}

func TestRAIDTester_RecoveredImageMatches(t *testing.T) {
	out := t.TempDir()
	tester := service.NewRAIDTester(out, 1.0, true, nil)
	obj := service.ImageToObject(gradient(13, 8))

	for _, mode := range []domain.ParityMode{domain.RAID5, domain.RAID6} {
		similarity, path, err := tester.TestRecovery(mode, obj, "g")
		if err != nil {
			t.Fatalf("%s: TestRecovery failed: %v", mode, err)
		}
		if similarity != 1 {
			t.Errorf("%s: similarity = %v, want 1", mode, similarity)
		}

		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		decoded, err := service.DecodeImage(f)
		f.Close()
		if err != nil {
			t.Fatalf("%s: saved image does not decode: %v", mode, err)
		}
		if decoded.Shape != obj.Shape || service.Similarity(decoded.Data, obj.Data) != 1 {
			t.Errorf("%s: saved image differs from the original", mode)
		}
	}
}

func TestRAIDTester_MissingDir(t *testing.T) {
	tester := service.NewRAIDTester(t.TempDir(), 1.0, true, nil)
	if _, err := tester.RunTests(context.Background(), filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b []byte
		want float64
	}{
		{[]byte{1, 2, 3, 4}, []byte{1, 2, 3, 4}, 1},
		{[]byte{1, 2, 3, 4}, []byte{1, 0, 3, 0}, 0.5},
		{[]byte{1}, []byte{1, 2}, 0},
		{nil, nil, 1},
	}
	for _, tt := range tests {
		if got := service.Similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("Similarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestImageObjectRoundTrip(t *testing.T) {
	rgba := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for i := range rgba.Pix {
		rgba.Pix[i] = uint8(i * 11)
	}
	obj := service.ImageToObject(rgba)
	if obj.Shape.Channels != 4 {
		t.Fatalf("translucent image should keep alpha, got %d channels", obj.Shape.Channels)
	}
	img, err := service.ObjectToImage(obj)
	if err != nil {
		t.Fatalf("ObjectToImage failed: %v", err)
	}
	if back := service.ImageToObject(img); service.Similarity(back.Data, obj.Data) != 1 {
		t.Error("RGBA round trip changed pixels")
	}

	if _, err := service.ObjectToImage(domain.Object{Shape: domain.Shape{Height: 1, Width: 1, Channels: 2}, Data: []byte{0, 0}}); err == nil {
		t.Error("expected error for 2 channel object")
	}
}
