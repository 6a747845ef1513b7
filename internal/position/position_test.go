package position

import (
	"context"
	"image"
	"testing"

	"github.com/rs/zerolog"
)

func TestParsePosition(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   Signal
		wantOK bool
	}{
		{
			name:   "japanese indicator",
			text:   "位置No. 120/400 (30%)",
			want:   Signal{Current: 120, Total: 400, Percentage: 30, Pattern: 1},
			wantOK: true,
		},
		{
			name:   "english indicator",
			text:   "Location 250 of 1000 (25%)",
			want:   Signal{Current: 250, Total: 1000, Percentage: 25, Pattern: 2},
			wantOK: true,
		},
		{
			name:   "bare fraction with percentage",
			text:   "42/300 (14%)",
			want:   Signal{Current: 42, Total: 300, Percentage: 14, Pattern: 3},
			wantOK: true,
		},
		{
			name:   "spaced fraction",
			text:   "42 / 300 14%",
			want:   Signal{Current: 42, Total: 300, Percentage: 14, Pattern: 4},
			wantOK: true,
		},
		{
			name:   "digits only computes percentage",
			text:   "120 / 400",
			want:   Signal{Current: 120, Total: 400, Percentage: 30, Pattern: 5},
			wantOK: true,
		},
		{
			name:   "digits only requires three digits",
			text:   "12/40",
			wantOK: false,
		},
		{
			name:   "noise around the indicator",
			text:   "...  位置No. 5/200 (2%)  ...",
			want:   Signal{Current: 5, Total: 200, Percentage: 2, Pattern: 1},
			wantOK: true,
		},
		{
			name:   "empty text",
			text:   "",
			wantOK: false,
		},
		{
			name:   "plain prose",
			text:   "chapter seven begins here",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePosition(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ParsePosition(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParsePosition(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimateTotal(t *testing.T) {
	tests := []struct {
		name        string
		sig         Signal
		currentPage int
		want        int
		wantOK      bool
	}{
		{
			name:        "halfway through",
			sig:         Signal{Percentage: 50},
			currentPage: 100,
			want:        200,
			wantOK:      true,
		},
		{
			name:        "early in the book",
			sig:         Signal{Percentage: 10},
			currentPage: 30,
			want:        300,
			wantOK:      true,
		},
		{
			name:        "zero percentage rejected",
			sig:         Signal{Percentage: 0},
			currentPage: 100,
			wantOK:      false,
		},
		{
			name:        "negative percentage rejected",
			sig:         Signal{Percentage: -5},
			currentPage: 100,
			wantOK:      false,
		},
		{
			name:        "estimate below current rejected",
			sig:         Signal{Percentage: 200},
			currentPage: 100,
			wantOK:      false,
		},
		{
			name:        "implausibly large estimate rejected",
			sig:         Signal{Percentage: 1},
			currentPage: 500,
			wantOK:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EstimateTotal(tt.sig, tt.currentPage)
			if ok != tt.wantOK {
				t.Fatalf("EstimateTotal(%+v, %d) ok = %v, want %v", tt.sig, tt.currentPage, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("EstimateTotal(%+v, %d) = %d, want %d", tt.sig, tt.currentPage, got, tt.want)
			}
		})
	}
}

type fakeReader struct {
	text string
	err  error
}

func (f *fakeReader) ReadStrip(_ context.Context, _ image.Image, _ string) (string, error) {
	return f.text, f.err
}

func TestDetectEndMarker(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"japanese end word", "ここで おわり です", true},
		{"english index heading", "Index\n123", true},
		{"case insensitive", "ABOUT THE AUTHOR", true},
		{"full percentage", "1200/1200 (100%)", true},
		{"mid-book page", "and the story continued for many more pages", false},
		{"empty strip", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(&fakeReader{text: tt.text}, zerolog.Nop())
			if got := e.DetectEndMarker(context.Background(), img); got != tt.want {
				t.Errorf("DetectEndMarker(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractPositionUsesNavStrip(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	e := NewExtractor(&fakeReader{text: "位置No. 77/350 (22%)"}, zerolog.Nop())

	sig, ok := e.ExtractPosition(context.Background(), img)
	if !ok {
		t.Fatal("expected a position signal")
	}
	if sig.Current != 77 || sig.Total != 350 || sig.Percentage != 22 {
		t.Errorf("got %+v", sig)
	}
}
