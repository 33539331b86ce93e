package measurement

import (
	"fmt"
	"math"
)

// Table is the dataset whose rows are submitted as measurements.
const Table = "student_measurements"

// Column names of the measurement table.
const (
	ColName        = "name"
	ColElement     = "element"
	ColRestWave    = "restwave"
	ColMeasWave    = "measwave"
	ColVelocity    = "velocity"
	ColDistance    = "distance"
	ColAngularSize = "angular_size"
	ColType        = "type"
	ColZ           = "z"
	ColStudentID   = "student_id"
)

// Mapping translates table columns to payload keys.
var Mapping = map[string]string{
	ColMeasWave:    "obs_wave_value",
	ColRestWave:    "rest_wave_value",
	ColVelocity:    "velocity_value",
	ColDistance:    "est_dist_value",
	ColName:        "galaxy_name",
	ColStudentID:   "student_id",
	ColAngularSize: "ang_size_value",
}

// Unit annotations sent with every payload.
const (
	UnitAngstrom   = "angstrom"
	UnitMegaparsec = "Mpc"
	UnitVelocity   = "km / s"
	UnitArcsecond  = "arcsecond"
)

// Tracked reports whether a change to column should be submitted.
func Tracked(column string) bool {
	_, ok := Mapping[column]
	return ok
}

// Record is one measurement table row keyed by column name.
type Record map[string]any

// Payload is the body of PUT /submit-measurement.
type Payload struct {
	ObsWaveValue  *float64 `json:"obs_wave_value"`
	RestWaveValue *float64 `json:"rest_wave_value"`
	VelocityValue *float64 `json:"velocity_value"`
	EstDistValue  *float64 `json:"est_dist_value"`
	GalaxyName    *string  `json:"galaxy_name"`
	StudentID     int64    `json:"student_id"`
	AngSizeValue  *float64 `json:"ang_size_value"`

	RestWaveUnit string `json:"rest_wave_unit"`
	ObsWaveUnit  string `json:"obs_wave_unit"`
	EstDistUnit  string `json:"est_dist_unit"`
	VelocityUnit string `json:"velocity_unit"`
	AngSizeUnit  string `json:"ang_size_unit"`
}

// Prepare builds the payload for row owned by studentID. The student id
// column of the row is ignored in favour of studentID.
func Prepare(row Record, studentID int64) (Payload, error) {
	p := Payload{
		StudentID:    studentID,
		RestWaveUnit: UnitAngstrom,
		ObsWaveUnit:  UnitAngstrom,
		EstDistUnit:  UnitMegaparsec,
		VelocityUnit: UnitVelocity,
		AngSizeUnit:  UnitArcsecond,
	}

	var err error
	numbers := []struct {
		col string
		dst **float64
	}{
		{ColMeasWave, &p.ObsWaveValue},
		{ColRestWave, &p.RestWaveValue},
		{ColVelocity, &p.VelocityValue},
		{ColDistance, &p.EstDistValue},
		{ColAngularSize, &p.AngSizeValue},
	}
	for _, n := range numbers {
		if *n.dst, err = number(row, n.col); err != nil {
			return Payload{}, err
		}
	}

	switch v := row[ColName].(type) {
	case nil:
	case string:
		if v != "" {
			p.GalaxyName = &v
		}
	default:
		return Payload{}, fmt.Errorf("column %s: unexpected %T", ColName, v)
	}
	return p, nil
}

func number(row Record, col string) (*float64, error) {
	var f float64
	switch v := row[col].(type) {
	case nil:
		return nil, nil
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	default:
		return nil, fmt.Errorf("column %s: unexpected %T", col, v)
	}
	if math.IsNaN(f) {
		return nil, nil
	}
	return &f, nil
}

// Velocity returns the recession velocity in km/s for a line observed at
// measured angstroms whose rest wavelength is rest.
func Velocity(rest, measured float64) (int, error) {
	if rest <= 0 {
		return 0, fmt.Errorf("rest wavelength must be positive, got %v", rest)
	}
	return int(math.Round(SpeedOfLight * (measured/rest - 1))), nil
}

// SpeedOfLight in km/s, as used by the classroom formula.
const SpeedOfLight = 3e5

// Rest wavelengths in angstroms of the lines students measure.
const (
	MgRestLambda     = 5177
	HAlphaRestLambda = 6565
)

// RestWavelength returns the rest wavelength for element.
func RestWavelength(element string) float64 {
	if element == "Mg-I" {
		return MgRestLambda
	}
	return HAlphaRestLambda
}
