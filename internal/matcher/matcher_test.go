package matcher

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func TestRankOrdersByDescendingScore(t *testing.T) {
	in := []Candidate{
		{ID: "c", Score: 40.5},
		{ID: "a", Score: 92.3},
		{ID: "b", Score: 81.0},
	}
	ranked := Rank(in)

	want := []string{"a", "b", "c"}
	for i, id := range want {
		if ranked[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, ranked[i].ID, id)
		}
	}
	if in[0].ID != "c" {
		t.Fatal("Rank must not reorder its input")
	}
	if ranked.Best().ID != "a" {
		t.Fatalf("unexpected best match %s", ranked.Best().ID)
	}
}

func TestRankKeepsServiceOrderOnTies(t *testing.T) {
	ranked := Rank([]Candidate{
		{ID: "first", Score: 70},
		{ID: "top", Score: 90},
		{ID: "second", Score: 70},
		{ID: "third", Score: 70},
	})
	got := []string{ranked[0].ID, ranked[1].ID, ranked[2].ID, ranked[3].ID}
	want := []string{"top", "first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", got, want)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"no face", NoFace(nil), NoFaceDetected},
		{"failed", Failed(errors.New("503")), RequestFailed},
		{"wrapped", fmt.Errorf("submit: %w", NoFace(errors.New("empty"))), NoFaceDetected},
		{"plain", errors.New("boom"), RequestFailed},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNewCapturedImageRejectsEmpty(t *testing.T) {
	if _, err := NewCapturedImage(nil, "image/jpeg"); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
}

func TestNewCapturedImageBuildsThumbnail(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1280, 640))
	for x := 0; x < 1280; x++ {
		src.Set(x, 10, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode: %v", err)
	}

	img, err := NewCapturedImage(buf.Bytes(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.ContentType != "image/png" {
		t.Fatalf("unexpected sniffed type %q", img.ContentType)
	}
	if !strings.HasPrefix(img.Preview, "data:image/jpeg;base64,") {
		t.Fatalf("expected jpeg preview, got %.40s", img.Preview)
	}

	thumb, err := thumbnail(buf.Bytes(), PreviewMaxSize)
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != PreviewMaxSize || b.Dy() != PreviewMaxSize/2 {
		t.Fatalf("unexpected thumbnail size %dx%d", b.Dx(), b.Dy())
	}
}

func TestNewCapturedImageCopiesBytes(t *testing.T) {
	data := []byte("not really an image")
	img, err := NewCapturedImage(data, "image/jpeg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data[0] = 'X'
	if img.Data[0] != 'n' {
		t.Fatal("captured image must own its bytes")
	}
	if !strings.HasPrefix(img.Preview, "data:image/jpeg;base64,") {
		t.Fatalf("expected raw fallback preview, got %.40s", img.Preview)
	}
}
