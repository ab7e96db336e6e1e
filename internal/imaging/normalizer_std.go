package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

type stdlibNormalizer struct{}

func (n stdlibNormalizer) Flatten(input []byte) ([]byte, bool, error) {
	src, srcFormat, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, false, fmt.Errorf("decode source image: %w", err)
	}

	if !hasTransparency(src) {
		return input, false, nil
	}

	out, err := encodeImage(compositeOnWhite(src), srcFormat)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (n stdlibNormalizer) ConvertWebP(input []byte, flatten bool) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	if flatten && hasTransparency(src) {
		src = compositeOnWhite(src)
	}

	return encodePNG(src)
}

func hasTransparency(img image.Image) bool {
	if opaque, ok := img.(interface{ Opaque() bool }); ok {
		return !opaque.Opaque()
	}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

func compositeOnWhite(src image.Image) image.Image {
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
	return dst
}

// encodeImage keeps the source format family: JPEG stays JPEG, everything
// else becomes PNG.
func encodeImage(img image.Image, srcFormat string) ([]byte, error) {
	if srcFormat == "jpeg" {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: flattenJPEGQuality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return buf.Bytes(), nil
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
