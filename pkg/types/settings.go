package types

import (
	"fmt"
	"time"
)

// CurrentDeviceSettingsVersion is the current version of the device settings
// struct. Increment this value when adding new fields that require default
// values.
const CurrentDeviceSettingsVersion = 3

// DefaultLocation is used when a device does not name a time zone.
const DefaultLocation = "Europe/London"

// DeviceSettings describes one device the poller accounts for.
type DeviceSettings struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Location is the IANA time zone used for every day and slot boundary.
	Location string `json:"location"`

	// BillingDay is the day of the month the billing period starts on.
	BillingDay int `json:"billingDay"`

	// Collaborators by name
	TariffProvider string `json:"tariffProvider"`
	MeterSource    string `json:"meterSource"`
	DispatchSource string `json:"dispatchSource"`

	Version int `json:"version"`

	location *time.Location
}

// LoadLocation returns the device's time zone, loading it once.
func (s *DeviceSettings) LoadLocation() (*time.Location, error) {
	if s.location != nil {
		return s.location, nil
	}
	name := s.Location
	if name == "" {
		name = DefaultLocation
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load location %s: %w", name, err)
	}
	s.location = loc
	return loc, nil
}

// MigrateDeviceSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made,
// and an error if migration failed.
func MigrateDeviceSettings(s DeviceSettings) (DeviceSettings, bool, error) {
	if s.Version >= CurrentDeviceSettingsVersion {
		return s, false, nil
	}

	migrated := false
	for version := s.Version + 1; version <= CurrentDeviceSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: billing periods start on the 1st unless told otherwise
			if s.BillingDay == 0 {
				s.BillingDay = 1
				migrated = true
			}
		case 2:
			// version 2: add location
			if s.Location == "" {
				s.Location = DefaultLocation
				migrated = true
			}
		case 3:
			// version 3: named collaborators, the only ones that existed before
			// were the static tariff and the mock meter
			if s.TariffProvider == "" {
				s.TariffProvider = "static"
				migrated = true
			}
			if s.MeterSource == "" {
				s.MeterSource = "mock"
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown device settings version: %d", version)
		}
	}
	s.Version = CurrentDeviceSettingsVersion

	return s, migrated, nil
}

// Validate checks the settings can be used for accounting.
func (s *DeviceSettings) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("device id cannot be empty")
	}
	if s.BillingDay < 1 || s.BillingDay > 31 {
		return fmt.Errorf("device %s: billing day %d out of range", s.ID, s.BillingDay)
	}
	if _, err := s.LoadLocation(); err != nil {
		return fmt.Errorf("device %s: %w", s.ID, err)
	}
	return nil
}
