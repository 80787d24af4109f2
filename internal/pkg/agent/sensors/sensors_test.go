package sensors

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/matryer/is"
)

func writeSensorFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensor.txt")
	err := os.WriteFile(path, []byte(content), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileSensorAnalogTareAndScale(t *testing.T) {
	is := is.New(t)

	path := writeSensorFile(t, "1250\n")
	s, err := New(Config{
		SensorID:    "shelf-01",
		Type:        "file_sensor",
		Path:        path,
		ScaleFactor: 10,
		TareOffset:  250,
	})
	is.NoErr(err)

	sample, ok, err := s.Read()
	is.NoErr(err)
	is.True(ok)
	is.Equal(1250.0, sample.Raw)
	is.Equal(100.0, sample.Normalized)
}

func TestFileSensorDigitalMode(t *testing.T) {
	is := is.New(t)

	path := writeSensorFile(t, "42")
	s, err := New(Config{SensorID: "door-01", Type: "file_sensor", Path: path, Mode: "digital"})
	is.NoErr(err)

	sample, ok, err := s.Read()
	is.NoErr(err)
	is.True(ok)
	is.Equal(1.0, sample.Normalized)
}

func TestFileSensorMissingFileIsNoSample(t *testing.T) {
	is := is.New(t)

	s, err := New(Config{SensorID: "x", Type: "file_sensor", Path: filepath.Join(t.TempDir(), "missing")})
	is.NoErr(err)

	_, ok, err := s.Read()
	is.NoErr(err)
	is.True(!ok)
}

func TestFileSensorGarbageContentIsNoSample(t *testing.T) {
	is := is.New(t)

	s, err := New(Config{SensorID: "x", Type: "file_sensor", Path: writeSensorFile(t, "not-a-number")})
	is.NoErr(err)

	_, ok, err := s.Read()
	is.NoErr(err)
	is.True(!ok)

	s, err = New(Config{SensorID: "x", Type: "file_sensor", Path: writeSensorFile(t, "")})
	is.NoErr(err)

	_, ok, err = s.Read()
	is.NoErr(err)
	is.True(!ok)
}

func TestUnsupportedSensorType(t *testing.T) {
	is := is.New(t)

	_, err := New(Config{SensorID: "x", Type: "quantum"})
	is.True(errors.Is(err, ErrUnsupportedType))
}
