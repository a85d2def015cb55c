package clearsky

import (
	"math"
	"time"
)

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// SolarPosition is the sun's apparent position in degrees.
type SolarPosition struct {
	Zenith   float64
	Azimuth  float64 // clockwise from north
	Altitude float64 // 90 - Zenith
}

// Daylight reports whether the sun is above the horizon.
func (p SolarPosition) Daylight() bool {
	return p.Zenith < 90
}

// Position computes the solar position with the NOAA solar calculator
// equations. Refraction is ignored.
func Position(t time.Time, latitude, longitude float64) SolarPosition {
	t = t.UTC()
	jd := float64(t.UnixNano())/float64(24*time.Hour) + 2440587.5
	jc := (jd - 2451545) / 36525

	meanLong := math.Mod(280.46646+jc*(36000.76983+jc*0.0003032), 360)
	meanAnom := 357.52911 + jc*(35999.05029-0.0001537*jc)
	ecc := 0.016708634 - jc*(0.000042037+0.0000001267*jc)

	center := math.Sin(meanAnom*degToRad)*(1.914602-jc*(0.004817+0.000014*jc)) +
		math.Sin(2*meanAnom*degToRad)*(0.019993-0.000101*jc) +
		math.Sin(3*meanAnom*degToRad)*0.000289
	trueLong := meanLong + center
	omega := 125.04 - 1934.136*jc
	appLong := trueLong - 0.00569 - 0.00478*math.Sin(omega*degToRad)

	meanObliq := 23 + (26+(21.448-jc*(46.815+jc*(0.00059-jc*0.001813)))/60)/60
	obliq := meanObliq + 0.00256*math.Cos(omega*degToRad)

	decl := math.Asin(math.Sin(obliq*degToRad)*math.Sin(appLong*degToRad)) * radToDeg

	y := math.Pow(math.Tan(obliq/2*degToRad), 2)
	l0 := meanLong * degToRad
	m := meanAnom * degToRad
	eqTime := 4 * radToDeg * (y*math.Sin(2*l0) -
		2*ecc*math.Sin(m) +
		4*ecc*y*math.Sin(m)*math.Cos(2*l0) -
		0.5*y*y*math.Sin(4*l0) -
		1.25*ecc*ecc*math.Sin(2*m))

	minutes := float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60
	trueSolar := math.Mod(minutes+eqTime+4*longitude, 1440)
	if trueSolar < 0 {
		trueSolar += 1440
	}
	hourAngle := trueSolar/4 - 180

	latR, declR := latitude*degToRad, decl*degToRad
	cosZen := math.Sin(latR)*math.Sin(declR) + math.Cos(latR)*math.Cos(declR)*math.Cos(hourAngle*degToRad)
	zenith := math.Acos(clamp(cosZen, -1, 1)) * radToDeg

	var azimuth float64
	denom := math.Cos(latR) * math.Sin(zenith*degToRad)
	if math.Abs(denom) < 1e-12 {
		azimuth = 180
	} else {
		a := math.Acos(clamp((math.Sin(latR)*math.Cos(zenith*degToRad)-math.Sin(declR))/denom, -1, 1)) * radToDeg
		if hourAngle > 0 {
			azimuth = math.Mod(a+180, 360)
		} else {
			azimuth = math.Mod(540-a, 360)
		}
	}

	return SolarPosition{Zenith: zenith, Azimuth: azimuth, Altitude: 90 - zenith}
}

// ExtraterrestrialDNI is the top-of-atmosphere normal irradiance for the
// day of year, in W/m².
func ExtraterrestrialDNI(t time.Time) float64 {
	doy := float64(t.UTC().YearDay())
	return 1367 * (1 + 0.033*math.Cos(2*math.Pi*doy/365))
}

// AngleOfIncidence returns the cosine of the angle between the sun and the
// surface normal.
func AngleOfIncidence(pos SolarPosition, tilt, surfaceAzimuth float64) float64 {
	z := pos.Zenith * degToRad
	b := tilt * degToRad
	return math.Cos(z)*math.Cos(b) + math.Sin(z)*math.Sin(b)*math.Cos((pos.Azimuth-surfaceAzimuth)*degToRad)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
