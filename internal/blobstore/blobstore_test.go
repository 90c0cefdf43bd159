package blobstore

import "testing"

func TestObjectKey_Key(t *testing.T) {
	key := ObjectKey{
		Year:       2019,
		Name:       "grid_azires_30_sloperes_30_lat59p329300_lon18p068600_y2019_f00000000000000ff",
		AzimuthRes: 30,
		SlopeRes:   30,
	}

	got := key.Key()
	want := "2019/grid_azires_30_sloperes_30_lat59p329300_lon18p068600_y2019_f00000000000000ff.pvgrid"
	if got != want {
		t.Fatalf("Key() = %s, want %s", got, want)
	}
	if key.Filename() != "grid_azires_30_sloperes_30_lat59p329300_lon18p068600_y2019_f00000000000000ff.pvgrid" {
		t.Fatalf("Filename() = %s", key.Filename())
	}
}
