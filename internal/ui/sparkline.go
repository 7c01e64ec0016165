package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Sparkline block characters representing 8 vertical levels (lowest to highest).
const sparklineBlocks = "▁▂▃▄▅▆▇█"

// sparklineBlockRunes provides indexed access to block characters.
var sparklineBlockRunes = []rune(sparklineBlocks)

// Sparkline renders a mini line graph from a slice of values. The width
// parameter bounds how many of the most recent data points are shown; values
// are mapped to 8 vertical levels over the window's min/max range, so
// absolute magnitudes (process counts, bytes) scale as well as percentages.
func Sparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}

	// Use only the most recent 'width' data points
	if len(data) > width {
		data = data[len(data)-width:]
	}

	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	var sb strings.Builder
	sb.Grow(len(data) * 4) // UTF-8 block chars are up to 3 bytes + some buffer

	numLevels := len(sparklineBlockRunes)
	valueRange := maxVal - minVal

	for _, v := range data {
		var level int
		if valueRange == 0 {
			// All values are the same, use middle level
			level = numLevels / 2
		} else {
			normalized := (v - minVal) / valueRange
			level = int(normalized * float64(numLevels-1))
			if level < 0 {
				level = 0
			} else if level >= numLevels {
				level = numLevels - 1
			}
		}
		sb.WriteRune(sparklineBlockRunes[level])
	}

	return sb.String()
}

// TrendSparkline renders a sparkline colored by where the latest value sits
// in the window's range: green in the lower third, yellow in the middle, red
// near the top. For a load-style metric that reads as "how close to the
// recent worst case are we right now".
func TrendSparkline(data []float64, width int) string {
	line := Sparkline(data, width)
	if line == "" {
		return ""
	}

	// Color over the same window the glyphs show.
	if len(data) > width {
		data = data[len(data)-width:]
	}

	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	color := ColorSuccess
	if maxVal > minVal {
		position := (data[len(data)-1] - minVal) / (maxVal - minVal)
		switch {
		case position >= 0.8:
			color = ColorError
		case position >= 0.6:
			color = ColorWarning
		}
	}

	return lipgloss.NewStyle().Foreground(color).Render(line)
}
