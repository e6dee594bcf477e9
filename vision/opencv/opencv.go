//go:build opencv

// Package opencv is a VisionProvider backed by OpenCV template matching.
//
// It needs OpenCV installed and is only built with the opencv tag.
package opencv

import (
	"errors"
	"image"
	"image/color"

	"github.com/mastercactapus/gpnp/vision"
	"gocv.io/x/gocv"
)

// Matcher uses normalized cross-correlation (TM_CCOEFF_NORMED).
type Matcher struct {
	// MaxMatches limits how many peaks are returned; 0 means 1.
	MaxMatches int
}

func toMat(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rgba.Set(x-b.Min.X, y-b.Min.Y, img.At(x, y))
		}
	}

	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer mat.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBAToGray)
	return gray, nil
}

func (m Matcher) LocateTemplateMatches(img, template image.Image, threshold float64) ([]vision.Match, error) {
	if img == nil || template == nil {
		return nil, errors.New("nil image")
	}
	src, err := toMat(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	tpl, err := toMat(template)
	if err != nil {
		return nil, err
	}
	defer tpl.Close()

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(src, tpl, &result, gocv.TmCcoeffNormed, mask)

	n := m.MaxMatches
	if n < 1 {
		n = 1
	}
	tw, th := template.Bounds().Dx(), template.Bounds().Dy()
	origin := img.Bounds().Min

	var res []vision.Match
	for len(res) < n {
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)
		if float64(maxVal) < threshold {
			break
		}
		res = append(res, vision.Match{
			X:     float64(origin.X+maxLoc.X) + float64(tw)/2,
			Y:     float64(origin.Y+maxLoc.Y) + float64(th)/2,
			Score: float64(maxVal),
		})
		// suppress the peak so the next iteration finds a different one
		gocv.Rectangle(&result, image.Rect(maxLoc.X-tw/2, maxLoc.Y-th/2, maxLoc.X+tw/2+1, maxLoc.Y+th/2+1), color.RGBA{}, -1)
	}
	if len(res) == 0 {
		return nil, vision.ErrNoMatch
	}
	return res, nil
}
