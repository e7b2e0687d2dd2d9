package coords

import (
	"fmt"
	"math"
)

// NextPowerOfTwo возвращает 2^ceil(log2(n)), определено для n >= 1
func NextPowerOfTwo(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("next power of two for %d: %w", n, ErrInvalidDimension)
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p, nil
}

// ComputePyramidPadding возвращает отношение размера, дополненного до степени двойки
// (в тайлах), к исходному размеру карты. Вьюпорт умножает на него границы сетки тайлов,
// чтобы границы тайлов исходного изображения совпадали с сеткой мира.
func ComputePyramidPadding(nativeWidthPx, nativeHeightPx, tilePx int) (float64, float64, error) {
	if tilePx <= 0 {
		return 0, 0, fmt.Errorf("tile size %d: %w", tilePx, ErrInvalidDimension)
	}
	xRatio, err := paddingRatio(nativeWidthPx, tilePx)
	if err != nil {
		return 0, 0, err
	}
	yRatio, err := paddingRatio(nativeHeightPx, tilePx)
	if err != nil {
		return 0, 0, err
	}
	return xRatio, yRatio, nil
}

func paddingRatio(nativePx, tilePx int) (float64, error) {
	if nativePx <= 0 {
		return 0, fmt.Errorf("native size %d: %w", nativePx, ErrInvalidDimension)
	}
	tiles := float64(nativePx) / float64(tilePx)
	padded, err := NextPowerOfTwo(int(math.Ceil(tiles)))
	if err != nil {
		return 0, err
	}
	return float64(padded) / tiles, nil
}

// TilePyramidConfig неизменяемое описание пирамиды, вычисляется один раз при старте
type TilePyramidConfig struct {
	BaseWidth    int `json:"base_width"`
	BaseHeight   int `json:"base_height"`
	PaddedWidth  int `json:"padded_width"`
	PaddedHeight int `json:"padded_height"`
}

// NewTilePyramidConfig строит конфигурацию пирамиды по размеру карты в тайлах мира
func NewTilePyramidConfig(baseWidth, baseHeight int) (TilePyramidConfig, error) {
	pw, err := NextPowerOfTwo(baseWidth)
	if err != nil {
		return TilePyramidConfig{}, fmt.Errorf("pyramid width: %w", err)
	}
	ph, err := NextPowerOfTwo(baseHeight)
	if err != nil {
		return TilePyramidConfig{}, fmt.Errorf("pyramid height: %w", err)
	}
	return TilePyramidConfig{
		BaseWidth:    baseWidth,
		BaseHeight:   baseHeight,
		PaddedWidth:  pw,
		PaddedHeight: ph,
	}, nil
}

// XRatio отношение padded/base по X
func (c TilePyramidConfig) XRatio() float64 {
	return float64(c.PaddedWidth) / float64(c.BaseWidth)
}

// YRatio отношение padded/base по Y
func (c TilePyramidConfig) YRatio() float64 {
	return float64(c.PaddedHeight) / float64(c.BaseHeight)
}

// DisplayBounds возвращает границы сетки тайлов в мировых единицах
func (c TilePyramidConfig) DisplayBounds() WorldPoint {
	return WorldPoint{X: float64(c.PaddedWidth), Y: float64(c.PaddedHeight)}
}

// TileRange возвращает количество столбцов и строк тайлов на уровне z,
// покрывающих исходную (не дополненную) карту. Уровень 0 - один тайл на всю пирамиду.
func (c TilePyramidConfig) TileRange(z int) (int, int) {
	if z < 0 {
		return 0, 0
	}
	n := float64(int(1) << uint(z))
	cols := int(math.Ceil(n * float64(c.BaseWidth) / float64(c.PaddedWidth)))
	rows := int(math.Ceil(n * float64(c.BaseHeight) / float64(c.PaddedHeight)))
	return cols, rows
}

// ValidTile проверяет, что адрес {z}/{y}/{x} попадает в пирамиду
func (c TilePyramidConfig) ValidTile(z, x, y int) bool {
	if z < 0 || z > 30 || x < 0 || y < 0 {
		return false
	}
	cols, rows := c.TileRange(z)
	return x < cols && y < rows
}
