// Package mapper converts between geographic coordinates and H3 cells.
package mapper

// Interface locates grids on the H3 index.
type Interface interface {
	LocationCell(lat, lon float64, res int) (string, error)
	Neighbourhood(cell string, k int) ([]string, error)
}
