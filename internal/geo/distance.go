// Package geo — расстояния между точками на поверхности Земли.
package geo

import "math"

// EarthRadiusKm — средний радиус Земли.
const EarthRadiusKm = 6371.0

// DistanceKm возвращает расстояние по большому кругу (haversine) в километрах.
// Координаты в градусах.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRad(lat1)
	phi2 := toRad(lat2)
	dPhi := toRad(lat2 - lat1)
	dLambda := toRad(lon2 - lon1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda

	// из-за погрешности a может чуть выйти за [0, 1] у антиподов
	a = math.Min(1, math.Max(0, a))

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(a))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
