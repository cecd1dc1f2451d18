// Package dedup drops clips whose opening frames are perceptually identical.
package dedup

import (
	"image"
	"math/bits"

	"github.com/nfnt/resize"
)

// Hash is a 64-bit average hash of an 8x8 grayscale thumbnail.
type Hash uint64

// AverageHash shrinks img to 8x8, converts it to luma and sets bit i when
// pixel i is brighter than the mean.
func AverageHash(img image.Image) Hash {
	small := resize.Resize(8, 8, img, resize.Bilinear)
	bounds := small.Bounds()

	var (
		luma [64]float64
		sum  float64
	)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			r, g, b, _ := small.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// ITU-R 601 weights on 16-bit channels
			v := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			luma[y*8+x] = v
			sum += v
		}
	}
	mean := sum / 64

	var h Hash
	for i, v := range luma {
		if v > mean {
			h |= 1 << uint(i)
		}
	}
	return h
}

// Distance is the Hamming distance between two hashes.
func Distance(a, b Hash) int {
	return bits.OnesCount64(uint64(a ^ b))
}
