package raster

// gg keeps pixmaps premultiplied; images and PNG payloads handed out of this
// package are straight alpha. Both conversions round to nearest, which makes
// straight(premultiplied) followed by premultiply the identity on every
// valid premultiplied pixel (R, G, B <= A).

func unpremultiply(dst, src []byte) {
	for i := 0; i+3 < len(src); i += 4 {
		a := uint32(src[i+3])
		dst[i+3] = uint8(a)
		if a == 0 {
			dst[i+0], dst[i+1], dst[i+2] = 0, 0, 0
			continue
		}
		for c := 0; c < 3; c++ {
			dst[i+c] = uint8(min((uint32(src[i+c])*255+a/2)/a, 255))
		}
	}
}

func premultiply(dst, src []byte) {
	for i := 0; i+3 < len(src); i += 4 {
		a := uint32(src[i+3])
		dst[i+3] = uint8(a)
		for c := 0; c < 3; c++ {
			dst[i+c] = uint8((uint32(src[i+c])*a + 127) / 255)
		}
	}
}

// scaleAlpha multiplies all four premultiplied channels of one pixel by
// keep/255, so color never exceeds alpha.
func scaleAlpha(px []byte, keep uint32) {
	for c := 0; c < 4; c++ {
		px[c] = uint8((uint32(px[c])*keep + 127) / 255)
	}
}
