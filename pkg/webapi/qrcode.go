package webapi

import (
	"image/color"
	"strconv"
	"strings"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	qrcode "github.com/skip2/go-qrcode"
)

// GenerateQRCodePNG renders content as a PNG. fg and bg are optional hex
// colours ("000", "1a1a1a", with or without '#').
func GenerateQRCodePNG(content string, size int, fg string, bg string) ([]byte, error) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return []byte{}, err
	}
	if fg != "" {
		if q.ForegroundColor, err = parseHexColor(fg); err != nil {
			return []byte{}, err
		}
	}
	if bg != "" {
		if q.BackgroundColor, err = parseHexColor(bg); err != nil {
			return []byte{}, err
		}
	}
	return q.PNG(size)
}

func parseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.RGBA{}, lnurl.NewErr(lnurl.BadRequest, "invalid colour %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, lnurl.NewErr(lnurl.BadRequest, "invalid colour %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
