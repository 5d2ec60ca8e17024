package render

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

//go:embed assets/discs/*.svg
var discFiles embed.FS

type discKind int

const (
	discEmpty discKind = iota
	discOccupied
	discDiff
)

func (k discKind) asset() string {
	switch k {
	case discOccupied:
		return "assets/discs/occupied.svg"
	case discDiff:
		return "assets/discs/diff.svg"
	default:
		return "assets/discs/empty.svg"
	}
}

type discCacheKey struct {
	kind discKind
	size int
}

var (
	discCache   = map[discCacheKey]image.Image{}
	discCacheMu sync.RWMutex
)

func discImage(kind discKind, size int) (image.Image, error) {
	key := discCacheKey{kind: kind, size: size}
	discCacheMu.RLock()
	if img, ok := discCache[key]; ok {
		discCacheMu.RUnlock()
		return img, nil
	}
	discCacheMu.RUnlock()

	data, err := discFiles.ReadFile(kind.asset())
	if err != nil {
		return nil, fmt.Errorf("read disc asset %s: %w", kind.asset(), err)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG(data)))
	if err != nil {
		return nil, fmt.Errorf("parse disc svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	discCacheMu.Lock()
	discCache[key] = img
	discCacheMu.Unlock()
	return img, nil
}

// oksvg rejects "fill: #..." with a space.
func sanitizeSVG(svg []byte) []byte {
	fixed := bytes.ReplaceAll(svg, []byte("fill: #"), []byte("fill:#"))
	fixed = bytes.ReplaceAll(fixed, []byte("stroke: #"), []byte("stroke:#"))
	return fixed
}
