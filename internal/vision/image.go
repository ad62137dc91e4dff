// Package vision decodes images and converts them into the tensor layout the
// model's image encoder expects.
package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	// Register stdlib decoders; webp comes from x/image.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Image is a decoded image held as RGBA with its source format.
type Image struct {
	RGBA   *image.RGBA
	Width  int
	Height int
	Format string
}

// Mode reports the pixel mode all decoded images are converted to.
// Kept for diagnostic log parity with the source format and size.
func (img *Image) Mode() string {
	return "RGBA"
}

// Decode decodes data into an Image. JPEG, PNG, GIF and WebP are supported.
func Decode(data []byte) (*Image, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	rgba := toRGBA(src)
	bounds := rgba.Bounds()
	return &Image{
		RGBA:   rgba,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: format,
	}, nil
}

// toRGBA converts any image.Image to *image.RGBA.
func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	bounds := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)
	return rgba
}

// Resize scales the image to width x height with bilinear interpolation.
func Resize(img *Image, width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img.RGBA, img.RGBA.Bounds(), xdraw.Src, nil)
	return &Image{RGBA: dst, Width: width, Height: height, Format: img.Format}, nil
}

// ResizeShortestSide scales the image so that its shorter side equals size,
// preserving aspect ratio.
func ResizeShortestSide(img *Image, size int) (*Image, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid target size %d", size)
	}
	w, h := img.Width, img.Height
	if w <= h {
		scaled := int(float64(h) * float64(size) / float64(w))
		return Resize(img, size, max(scaled, size))
	}
	scaled := int(float64(w) * float64(size) / float64(h))
	return Resize(img, max(scaled, size), size)
}

// CenterCrop cuts a centered width x height region out of the image.
func CenterCrop(img *Image, width, height int) (*Image, error) {
	if width > img.Width || height > img.Height {
		return nil, fmt.Errorf("crop %dx%d exceeds image %dx%d", width, height, img.Width, img.Height)
	}
	offsetX := (img.Width - width) / 2
	offsetY := (img.Height - height) / 2

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	srcRect := image.Rect(offsetX, offsetY, offsetX+width, offsetY+height)
	draw.Draw(dst, dst.Bounds(), img.RGBA, srcRect.Min, draw.Src)

	return &Image{RGBA: dst, Width: width, Height: height, Format: img.Format}, nil
}
