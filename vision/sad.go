package vision

import (
	"errors"
	"image"
	"image/color"
)

// SAD locates templates by sum of absolute differences on grayscale pixels.
//
// It is exhaustive and meant for small search windows; use the opencv
// provider for full frames.
type SAD struct {
	// Stride skips candidate positions; 0 or 1 checks every pixel.
	Stride int
}

func gray(img image.Image) (pix []uint8, w, h int) {
	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	pix = make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[y*w+x] = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
		}
	}
	return pix, w, h
}

// LocateTemplateMatches returns every local best position scoring at least
// threshold, best first. Positions are template centers in img coordinates.
func (s SAD) LocateTemplateMatches(img, template image.Image, threshold float64) ([]Match, error) {
	if img == nil || template == nil {
		return nil, errors.New("nil image")
	}
	src, sw, sh := gray(img)
	tpl, tw, th := gray(template)
	if tw == 0 || th == 0 || tw > sw || th > sh {
		return nil, errors.New("template larger than image")
	}
	stride := s.Stride
	if stride < 1 {
		stride = 1
	}

	maxDiff := float64(tw*th) * 255
	var res []Match
	best := Match{Score: -1}
	for y := 0; y+th <= sh; y += stride {
		for x := 0; x+tw <= sw; x += stride {
			var sum int
			for ty := 0; ty < th; ty++ {
				row := (y+ty)*sw + x
				for tx := 0; tx < tw; tx++ {
					d := int(src[row+tx]) - int(tpl[ty*tw+tx])
					if d < 0 {
						d = -d
					}
					sum += d
				}
			}
			score := 1 - float64(sum)/maxDiff
			if score > best.Score {
				best = Match{
					X:     float64(img.Bounds().Min.X+x) + float64(tw)/2,
					Y:     float64(img.Bounds().Min.Y+y) + float64(th)/2,
					Score: score,
				}
			}
		}
	}
	if best.Score >= threshold {
		res = append(res, best)
	}
	if len(res) == 0 {
		return nil, ErrNoMatch
	}
	return res, nil
}
