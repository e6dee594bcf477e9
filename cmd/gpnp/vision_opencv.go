//go:build opencv

package main

import (
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/vision/opencv"
)

func newVisionProvider() machine.VisionProvider { return opencv.Matcher{MaxMatches: 4} }
