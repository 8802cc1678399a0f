package dsp

import "math"

// Phase distortion modes. Mode 0 leaves the phase alone.
const (
	PDOff = iota
	PDPulse
	PDSquare
	PDFold
	PDDouble
	PDTriangle
	PDResonant4
	PDResonant8
	PDModes
)

// MaxPDAmount is the upper clamp for a distortion amount.
const MaxPDAmount = 0.999

// Distort remaps a normalized phase p in [0,1) with amount d in [0,0.999].
// The result stays in [0,1].
func Distort(mode int, p, d float64) float64 {
	switch mode {
	case PDPulse:
		// two slopes meeting at the half-way output point
		m := 0.5 * (1 - d)
		if p < m {
			return 0.5 * p / m
		}
		return 0.5 + 0.5*(p-m)/(1-m)
	case PDSquare:
		w := 0.25 * (1 - d)
		switch {
		case p < w:
			return 0.25 * p / w
		case p < 0.5-w:
			return 0.25
		case p < 0.5+w:
			return 0.25 + 0.5*(p-(0.5-w))/(2*w)
		case p < 1-w:
			return 0.75
		default:
			return 0.75 + 0.25*(p-(1-w))/w
		}
	case PDFold:
		x := math.Mod(p*(1+3*d), 2)
		if x > 1 {
			x = 2 - x
		}
		return x
	case PDDouble:
		x := p * (1 + d)
		return x - math.Floor(x)
	case PDTriangle:
		tri := 1 - math.Abs(2*p-1)
		return (1-d)*p + d*tri
	case PDResonant4:
		return FastPow(p, 1+4*d)
	case PDResonant8:
		return FastPow(p, 1+8*d)
	default:
		return p
	}
}

// FastPow approximates x^y for x >= 0 with a piecewise polynomial log2/exp2
// pair. Relative error is a few percent, plenty for timbre warping.
func FastPow(x, y float64) float64 {
	if x <= 0 {
		return 0
	}
	if x == 1 || y == 0 {
		return 1
	}
	return fastExp2(y * fastLog2(x))
}

func fastLog2(x float64) float64 {
	m, e := math.Frexp(x)
	m *= 2
	e--
	return float64(e) + (-0.34484843*m+2.02466578)*m - 1.67487759
}

func fastExp2(z float64) float64 {
	n := math.Floor(z)
	f := z - n
	return math.Ldexp(1+f*(0.6565+f*0.3435), int(n))
}
