//go:build govips && cgo

package imaging

import (
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

type govipsNormalizer struct{}

var white = &vips.Color{R: 255, G: 255, B: 255}

func (n govipsNormalizer) Flatten(input []byte) ([]byte, bool, error) {
	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, false, fmt.Errorf("decode source image: %w", err)
	}
	defer img.Close()

	if !img.HasAlpha() {
		return input, false, nil
	}

	if err := img.Flatten(white); err != nil {
		return nil, false, fmt.Errorf("flatten image: %w", err)
	}

	if vips.DetermineImageType(input) == vips.ImageTypeJPEG {
		params := vips.NewJpegExportParams()
		params.Quality = flattenJPEGQuality
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, false, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, true, nil
	}

	data, _, err := img.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, false, fmt.Errorf("encode png: %w", err)
	}
	return data, true, nil
}

func (n govipsNormalizer) ConvertWebP(input []byte, flatten bool) ([]byte, error) {
	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	defer img.Close()

	if flatten && img.HasAlpha() {
		if err := img.Flatten(white); err != nil {
			return nil, fmt.Errorf("flatten image: %w", err)
		}
	}

	data, _, err := img.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return data, nil
}
