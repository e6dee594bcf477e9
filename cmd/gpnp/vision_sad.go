//go:build !opencv

package main

import (
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/vision"
)

func newVisionProvider() machine.VisionProvider { return vision.SAD{Stride: 2} }
