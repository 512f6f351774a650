package pipeline

import "strings"

// namedColors covers the CSS color keywords uploads are likely to use for
// solid backgrounds.
var namedColors = map[string]string{
	"white":   "#ffffff",
	"black":   "#000000",
	"red":     "#ff0000",
	"green":   "#008000",
	"blue":    "#0000ff",
	"yellow":  "#ffff00",
	"cyan":    "#00ffff",
	"aqua":    "#00ffff",
	"magenta": "#ff00ff",
	"fuchsia": "#ff00ff",
	"gray":    "#808080",
	"grey":    "#808080",
	"silver":  "#c0c0c0",
	"maroon":  "#800000",
	"olive":   "#808000",
	"lime":    "#00ff00",
	"teal":    "#008080",
	"navy":    "#000080",
	"purple":  "#800080",
	"orange":  "#ffa500",
}

// NormalizeColor canonicalizes a CSS color value to lowercase #rrggbb form.
// Three-digit hex is expanded; named colors are resolved. Values that are
// not recognized come back lowercased so comparisons stay stable.
func NormalizeColor(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if hex, ok := namedColors[v]; ok {
		return hex
	}
	if strings.HasPrefix(v, "#") && len(v) == 4 {
		return "#" + strings.Repeat(string(v[1]), 2) +
			strings.Repeat(string(v[2]), 2) +
			strings.Repeat(string(v[3]), 2)
	}
	return v
}
