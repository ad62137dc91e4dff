package vision

// CLIP normalization constants, per the model's paired preprocessor.
var (
	ClipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	ClipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// NormalizeNCHW scales pixels to [0,1], normalizes each channel with
// (v - mean) / std, and returns a channel-first float32 tensor of length
// 3 * H * W, the layout ONNX vision graphs expect.
func NormalizeNCHW(img *Image, mean, std [3]float32) []float32 {
	bounds := img.RGBA.Bounds()
	h := bounds.Dy()
	w := bounds.Dx()
	plane := h * w

	result := make([]float32, 3*plane)
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b := extractRGB(img, x, y)
			result[idx] = (r - mean[0]) / std[0]
			result[plane+idx] = (g - mean[1]) / std[1]
			result[2*plane+idx] = (b - mean[2]) / std[2]
			idx++
		}
	}
	return result
}

// extractRGB returns the RGB values at (x, y) as float32 in [0,1].
func extractRGB(img *Image, x, y int) (float32, float32, float32) {
	r, g, b, _ := img.RGBA.At(x, y).RGBA()
	// RGBA returns 16-bit values; reduce to 8-bit before scaling.
	return float32(r>>8) / 255.0, float32(g>>8) / 255.0, float32(b>>8) / 255.0
}

// PreprocessCLIP runs the full CLIP image pipeline: resize the shortest side
// to size, center-crop to size x size, and normalize into an NCHW tensor.
func PreprocessCLIP(img *Image, size int) ([]float32, error) {
	resized, err := ResizeShortestSide(img, size)
	if err != nil {
		return nil, err
	}
	cropped, err := CenterCrop(resized, size, size)
	if err != nil {
		return nil, err
	}
	return NormalizeNCHW(cropped, ClipMean, ClipStd), nil
}
