// Package blobstore is the long-term home of finished grid artifacts,
// shared with the services that read grids by filename and year.
package blobstore

import (
	"context"
	"errors"
	"fmt"
)

// Ext is appended to every object name.
const Ext = "pvgrid"

var ErrNotFound = errors.New("blob not found")

// ObjectKey addresses one artifact. The resolutions travel as metadata and
// do not change the object path.
type ObjectKey struct {
	Year       int
	Name       string
	AzimuthRes int
	SlopeRes   int
}

// Key is the object path, <year>/<name>.pvgrid.
func (k ObjectKey) Key() string {
	return fmt.Sprintf("%d/%s.%s", k.Year, k.Name, Ext)
}

// Filename is the last path element.
func (k ObjectKey) Filename() string {
	return fmt.Sprintf("%s.%s", k.Name, Ext)
}

// Store is implemented by each blob driver.
type Store interface {
	Exists(ctx context.Context, key ObjectKey) (bool, error)
	Get(ctx context.Context, key ObjectKey) ([]byte, error) // ErrNotFound when absent
	Put(ctx context.Context, key ObjectKey, data []byte) error
}
