package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cosmicds/cosmicds/internal/measurement"
)

// UpsertMeasurement stores p, replacing any earlier row for the same
// student and galaxy.
func (s *Store) UpsertMeasurement(ctx context.Context, p measurement.Payload) error {
	if p.GalaxyName == nil || *p.GalaxyName == "" {
		return errors.New("upsert measurement: galaxy_name is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO measurements (
			student_id, galaxy_name,
			obs_wave_value, rest_wave_value, velocity_value, est_dist_value, ang_size_value,
			rest_wave_unit, obs_wave_unit, est_dist_unit, velocity_unit, ang_size_unit,
			updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(student_id, galaxy_name) DO UPDATE SET
			obs_wave_value = excluded.obs_wave_value,
			rest_wave_value = excluded.rest_wave_value,
			velocity_value = excluded.velocity_value,
			est_dist_value = excluded.est_dist_value,
			ang_size_value = excluded.ang_size_value,
			rest_wave_unit = excluded.rest_wave_unit,
			obs_wave_unit = excluded.obs_wave_unit,
			est_dist_unit = excluded.est_dist_unit,
			velocity_unit = excluded.velocity_unit,
			ang_size_unit = excluded.ang_size_unit,
			updated_at = excluded.updated_at
	`,
		p.StudentID, *p.GalaxyName,
		nullFloat(p.ObsWaveValue), nullFloat(p.RestWaveValue), nullFloat(p.VelocityValue),
		nullFloat(p.EstDistValue), nullFloat(p.AngSizeValue),
		p.RestWaveUnit, p.ObsWaveUnit, p.EstDistUnit, p.VelocityUnit, p.AngSizeUnit,
		s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("upsert measurement: %w", err)
	}
	return nil
}

// ListMeasurements returns a student's measurements ordered by galaxy name.
// It returns an empty slice when there are none.
func (s *Store) ListMeasurements(ctx context.Context, studentID int64) ([]measurement.Payload, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, galaxy_name,
			obs_wave_value, rest_wave_value, velocity_value, est_dist_value, ang_size_value,
			rest_wave_unit, obs_wave_unit, est_dist_unit, velocity_unit, ang_size_unit
		FROM measurements
		WHERE student_id = ?
		ORDER BY galaxy_name COLLATE BINARY ASC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer rows.Close()

	out := []measurement.Payload{}
	for rows.Next() {
		var (
			p                                 measurement.Payload
			name                              string
			obs, rest, vel, dist, angularSize sql.NullFloat64
		)
		if err := rows.Scan(&p.StudentID, &name,
			&obs, &rest, &vel, &dist, &angularSize,
			&p.RestWaveUnit, &p.ObsWaveUnit, &p.EstDistUnit, &p.VelocityUnit, &p.AngSizeUnit,
		); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		p.GalaxyName = &name
		p.ObsWaveValue = floatPtr(obs)
		p.RestWaveValue = floatPtr(rest)
		p.VelocityValue = floatPtr(vel)
		p.EstDistValue = floatPtr(dist)
		p.AngSizeValue = floatPtr(angularSize)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurements: %w", err)
	}
	return out, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}
