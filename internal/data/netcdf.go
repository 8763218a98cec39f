package data

import (
	"fmt"
	"os"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"

	"wind-hindcast/internal/model"
)

// NetCDFDecoder reads the NCSS netCDF subset: 2-D (or 1-D axis) lon/lat plus
// the two wind variables shaped [time][height][y][x].
type NetCDFDecoder struct {
	LonVar      string // default "lon"
	LatVar      string // default "lat"
	UVar        string
	VVar        string
	HeightIndex int // index into the height dimension; 1 is 80 m for RAP
}

// Decode writes payload to a temporary file and reads it with the netCDF reader.
func (d *NetCDFDecoder) Decode(payload []byte) (*model.GridSnapshot, error) {
	f, err := os.CreateTemp("", "rap-*.nc")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()
	defer os.Remove(name)

	if _, err := f.Write(payload); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	return d.DecodeFile(name)
}

// DecodeFile reads a snapshot from a netCDF file on disk.
func (d *NetCDFDecoder) DecodeFile(path string) (*model.GridSnapshot, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open netCDF: %w", err)
	}
	defer nc.Close()

	get := func(name string, lead ...int) ([]float64, error) {
		vr, err := nc.GetVariable(name)
		if err != nil || vr == nil {
			return nil, fmt.Errorf("variable %q not found", name)
		}
		vals, err := selectIndex(vr.Values, lead...)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		return flatten(vals)
	}

	lonName, latName := d.LonVar, d.LatVar
	if lonName == "" {
		lonName = "lon"
	}
	if latName == "" {
		latName = "lat"
	}
	uName, vName := d.UVar, d.VVar
	if uName == "" {
		uName = DefaultUVar
	}
	if vName == "" {
		vName = DefaultVVar
	}

	lon, err := get(lonName)
	if err != nil {
		return nil, err
	}
	lat, err := get(latName)
	if err != nil {
		return nil, err
	}
	u, err := get(uName, 0, d.HeightIndex)
	if err != nil {
		return nil, err
	}
	v, err := get(vName, 0, d.HeightIndex)
	if err != nil {
		return nil, err
	}

	lon, lat = meshAxes(lon, lat, len(u))
	snap := &model.GridSnapshot{Lon: lon, Lat: lat, U: u, V: v}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// meshAxes expands 1-D lon/lat axes into a row-major (lat, lon) mesh when the
// wind grid is their outer product. 2-D coordinates pass through unchanged.
func meshAxes(lon, lat []float64, n int) ([]float64, []float64) {
	if len(lon) == n && len(lat) == n {
		return lon, lat
	}
	if len(lon)*len(lat) != n {
		return lon, lat
	}
	mlon := make([]float64, 0, n)
	mlat := make([]float64, 0, n)
	for _, y := range lat {
		for _, x := range lon {
			mlon = append(mlon, x)
			mlat = append(mlat, y)
		}
	}
	return mlon, mlat
}

// selectIndex descends into nested slices, e.g. values[0][1] for lead (0, 1).
func selectIndex(values any, lead ...int) (any, error) {
	v := reflect.ValueOf(values)
	for depth, i := range lead {
		if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
			return nil, fmt.Errorf("rank %d too small for index %v", depth, lead)
		}
		if i < 0 || i >= v.Len() {
			return nil, fmt.Errorf("index %d out of range [0, %d) at dimension %d", i, v.Len(), depth)
		}
		v = v.Index(i)
	}
	return v.Interface(), nil
}

// flatten walks nested numeric slices in row-major order.
func flatten(values any) ([]float64, error) {
	var out []float64
	var walk func(v reflect.Value) error
	walk = func(v reflect.Value) error {
		switch v.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < v.Len(); i++ {
				if err := walk(v.Index(i)); err != nil {
					return err
				}
			}
		case reflect.Float32, reflect.Float64:
			out = append(out, v.Float())
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
			out = append(out, float64(v.Int()))
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
			out = append(out, float64(v.Uint()))
		case reflect.Interface:
			return walk(v.Elem())
		default:
			return fmt.Errorf("unsupported value type %s", v.Type())
		}
		return nil
	}
	if values == nil {
		return nil, fmt.Errorf("no values")
	}
	if err := walk(reflect.ValueOf(values)); err != nil {
		return nil, err
	}
	return out, nil
}
