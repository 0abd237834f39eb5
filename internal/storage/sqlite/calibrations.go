package sqlite

import (
	"fmt"
	"sort"
	"time"

	"github.com/yegors/co-gcs/internal/calibration"
)

// LoadCalibration returns the stored table for a device, nil if the device
// has never been calibrated
func (s *Storage) LoadCalibration(deviceID string) (*calibration.Table, error) {
	rows, err := s.db.Query(`
		SELECT profile, function, axis, reversed, min, max, trim
		FROM input_calibrations
		WHERE device_id = ?
	`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query calibration: %w", err)
	}
	defer rows.Close()

	var table *calibration.Table
	for rows.Next() {
		var (
			profile, function string
			m                 calibration.Mapping
		)
		if err := rows.Scan(&profile, &function, &m.Axis, &m.Reversed, &m.Min, &m.Max, &m.Trim); err != nil {
			return nil, fmt.Errorf("failed to scan calibration row: %w", err)
		}
		m.Function, err = calibration.ParseFunction(function)
		if err != nil {
			s.logger.Warn("Skipping stored mapping",
				String("device", deviceID),
				String("function", function),
				Error(err))
			continue
		}

		if table == nil {
			table = &calibration.Table{DeviceID: deviceID, Profile: profile}
		}
		table.Mappings = append(table.Mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calibration rows: %w", err)
	}

	if table != nil {
		sort.Slice(table.Mappings, func(i, j int) bool {
			return table.Mappings[i].Function < table.Mappings[j].Function
		})
	}
	return table, nil
}

// SaveCalibration replaces the stored table of t.DeviceID in one transaction
func (s *Storage) SaveCalibration(t *calibration.Table) error {
	if t == nil || t.DeviceID == "" {
		return fmt.Errorf("calibration table has no device id")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Error("Failed to rollback transaction", Error(rollbackErr))
			}
		}
	}()

	if _, err = tx.Exec(`DELETE FROM input_calibrations WHERE device_id = ?`, t.DeviceID); err != nil {
		return fmt.Errorf("failed to clear calibration: %w", err)
	}

	now := time.Now().UTC()
	for _, m := range t.Mappings {
		_, err = tx.Exec(`
			INSERT INTO input_calibrations
			(device_id, profile, function, axis, reversed, min, max, trim, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.DeviceID, t.Profile, m.Function.String(), m.Axis, m.Reversed, m.Min, m.Max, m.Trim, now)
		if err != nil {
			return fmt.Errorf("failed to insert %s mapping: %w", m.Function, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit calibration: %w", err)
	}

	s.logger.Info("Saved calibration",
		String("device", t.DeviceID),
		Int("mappings", len(t.Mappings)))
	return nil
}

// CalibratedDevices lists the device ids with a stored table
func (s *Storage) CalibratedDevices() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT device_id FROM input_calibrations ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query calibrated devices: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan device id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
