package rgb565

import (
	"image"
	"image/color"
	"image/draw"
	"testing"
)

func TestColorRGBA(t *testing.T) {
	tests := []struct {
		name    string
		c       Color
		r, g, b uint32
	}{
		{"black", 0x0000, 0, 0, 0},
		{"white", 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF},
		{"red", 0xF800, 0xFFFF, 0, 0},
		{"green", 0x07E0, 0, 0xFFFF, 0},
		{"blue", 0x001F, 0, 0, 0xFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b, a := tt.c.RGBA()
			if r != tt.r || g != tt.g || b != tt.b || a != 0xFFFF {
				t.Errorf("RGBA() = (%x, %x, %x, %x), want (%x, %x, %x, ffff)", r, g, b, a, tt.r, tt.g, tt.b)
			}
		})
	}
}

func TestModelConvert(t *testing.T) {
	tests := []struct {
		name  string
		input color.Color
		want  Color
	}{
		{"passthrough", Color(0x1234), 0x1234},
		{"white", color.White, 0xFFFF},
		{"black", color.Black, 0x0000},
		{"spring green", color.RGBA{0x00, 0xFF, 0x78, 0xFF}, RGB(0x00, 0xFF, 0x78)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Model.Convert(tt.input).(Color); got != tt.want {
				t.Errorf("Convert(%v) = %#04x, want %#04x", tt.input, got, tt.want)
			}
		})
	}
}

func TestImageBigEndianLayout(t *testing.T) {
	img := NewImage(image.Rect(10, 20, 13, 22))
	if img.Stride != 6 || len(img.Pix) != 12 {
		t.Fatalf("expected stride 6 and 12 bytes, got %d and %d", img.Stride, len(img.Pix))
	}
	img.SetRGB565(11, 21, 0xABCD)
	i := img.PixOffset(11, 21)
	if i != 8 || img.Pix[i] != 0xAB || img.Pix[i+1] != 0xCD {
		t.Fatalf("expected 0xAB 0xCD at offset 8, got offset %d: % x", i, img.Pix)
	}
	if got := img.RGB565At(11, 21); got != 0xABCD {
		t.Fatalf("expected 0xABCD, got %#04x", got)
	}
	// Out of bounds reads are black and writes are ignored.
	img.SetRGB565(0, 0, 0xFFFF)
	if got := img.RGB565At(0, 0); got != 0 {
		t.Fatalf("expected 0 outside bounds, got %#04x", got)
	}
}

func TestFillRectClips(t *testing.T) {
	img := NewImage(image.Rect(0, 0, 4, 4))
	img.FillRect(image.Rect(2, 2, 10, 10), 0xF800)
	for y := range 4 {
		for x := range 4 {
			want := Color(0)
			if x >= 2 && y >= 2 {
				want = 0xF800
			}
			if got := img.RGB565At(x, y); got != want {
				t.Fatalf("(%d,%d): expected %#04x, got %#04x", x, y, want, got)
			}
		}
	}
	if img.Uniform(0) {
		t.Fatal("expected a partly filled image not to be uniform")
	}
	img.Fill(0x07E0)
	if !img.Uniform(0x07E0) {
		t.Fatal("expected Fill to paint every pixel")
	}
}

func TestDrawInterop(t *testing.T) {
	img := NewImage(image.Rect(0, 0, 2, 2))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{0xFF, 0, 0, 0xFF}), image.Point{}, draw.Src)
	if !img.Uniform(0xF800) {
		t.Fatalf("expected red everywhere, got % x", img.Pix)
	}

	sub := img.SubImage(image.Rect(1, 1, 2, 2)).(*Image)
	sub.SetRGB565(1, 1, 0x001F)
	if got := img.RGB565At(1, 1); got != 0x001F {
		t.Fatalf("expected sub-image writes to reach the parent, got %#04x", got)
	}
	if !sub.Uniform(0x001F) {
		t.Fatal("expected the 1x1 sub-image to be uniform")
	}
}
