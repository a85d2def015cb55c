package chart

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/lox/pvclearsky/internal/models"
)

var (
	fontLarge   font.Face
	fontRegular font.Face
	fontSmall   font.Face
	fontOnce    sync.Once
	fontErr     error
)

func newFace(data []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

func loadFonts() {
	fontOnce.Do(func() {
		if fontLarge, fontErr = newFace(gomedium.TTF, 110); fontErr != nil {
			fontErr = fmt.Errorf("create large face: %w", fontErr)
			return
		}
		if fontRegular, fontErr = newFace(goregular.TTF, 34); fontErr != nil {
			fontErr = fmt.Errorf("create regular face: %w", fontErr)
			return
		}
		if fontSmall, fontErr = newFace(goregular.TTF, 24); fontErr != nil {
			fontErr = fmt.Errorf("create small face: %w", fontErr)
		}
	})
}

// CardWidth and CardHeight are the standard Open Graph image dimensions.
const (
	CardWidth  = 1200
	CardHeight = 630
)

// CardData is the content of a summary card.
type CardData struct {
	StationID string
	Result    *models.WindowResult
	Reports   []models.DayReport
}

// Card renders a compact summary of a K_PV window: mean index plus the
// error statistics of each day.
func Card(data CardData) ([]byte, error) {
	if data.Result == nil {
		return nil, ErrEmptyChart
	}
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}

	img := image.NewRGBA(image.Rect(0, 0, CardWidth, CardHeight))
	for y := 0; y < CardHeight; y++ {
		progress := float64(y) / float64(CardHeight)
		c := color.RGBA{uint8(20 + progress*10), uint8(30 + progress*20), uint8(45 + progress*25), 255}
		for x := 0; x < CardWidth; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	white := color.RGBA{255, 255, 255, 255}
	lightGray := color.RGBA{200, 200, 200, 255}
	amber := color.RGBA{255, 196, 0, 255}

	res := data.Result
	drawText(img, fmt.Sprintf("%.2f", res.MeanKPV), 60, 170, amber, fontLarge)
	drawText(img, "mean K_PV", 60, 215, lightGray, fontRegular)
	drawText(img, fmt.Sprintf("%s  ·  %s  ·  steps %d-%d", data.StationID, res.Model, res.Start, res.End), 60, 290, white, fontRegular)

	y := 360
	for i, r := range data.Reports {
		if i == 6 {
			drawText(img, fmt.Sprintf("... %d more days", len(data.Reports)-i), 60, y, lightGray, fontSmall)
			break
		}
		line := fmt.Sprintf("%s   MAPE %.1f%%   RMSE %.1f   MAE %.1f", r.Label, r.MAPE, r.RMSE, r.MAE)
		drawText(img, line, 60, y, white, fontSmall)
		y += 36
	}

	drawText(img, "pvclearsky", 60, CardHeight-30, lightGray, fontSmall)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

// drawText draws text at the given position using the specified font face.
func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
