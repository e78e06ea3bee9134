// Package geobitmap maintains an in-memory mirror of which surrogate
// keys have at least one georeferenced unit, independent of the
// relational store's listing view.
package geobitmap

import "github.com/RoaringBitmap/roaring"

// Bitmap is a compressed set of surrogate keys known to have at least
// one unit carrying both a longitude and a latitude reading.
type Bitmap struct {
	bits *roaring.Bitmap
}

// New returns an empty Bitmap.
func New() *Bitmap {
	return &Bitmap{bits: roaring.New()}
}

// Set marks surrogateKey as georeferenced.
func (b *Bitmap) Set(surrogateKey int) {
	b.bits.Add(uint32(surrogateKey))
}

// Contains reports whether surrogateKey has been marked georeferenced.
func (b *Bitmap) Contains(surrogateKey int) bool {
	return b.bits.Contains(uint32(surrogateKey))
}

// Len returns the number of distinct surrogate keys marked.
func (b *Bitmap) Len() int {
	return int(b.bits.GetCardinality())
}
