package source

import "fmt"

// TimeSlot is one entry of a weekly schedule. Position is the slot's
// identity within a day; the vendor reorders slots between fetches.
type TimeSlot struct {
	Start    string `json:"start"` // "HH:MM"
	End      string `json:"end"`   // "HH:MM"
	Mode     string `json:"mode"`  // "normal", "reduced", "comfort", "on", "off"
	Position int    `json:"position"`
}

// WeeklySchedule holds the per-day time slots of one schedulable feature.
type WeeklySchedule struct {
	Active bool       `json:"active"`
	Mon    []TimeSlot `json:"mon,omitempty"`
	Tue    []TimeSlot `json:"tue,omitempty"`
	Wed    []TimeSlot `json:"wed,omitempty"`
	Thu    []TimeSlot `json:"thu,omitempty"`
	Fri    []TimeSlot `json:"fri,omitempty"`
	Sat    []TimeSlot `json:"sat,omitempty"`
	Sun    []TimeSlot `json:"sun,omitempty"`
}

// CircuitConfig holds the setpoints and schedule of one heating circuit.
type CircuitConfig struct {
	CircuitID int     `json:"circuit_id"`
	Name      *string `json:"name,omitempty"`

	TempComfort *float64 `json:"temp_comfort,omitempty"`
	TempNormal  *float64 `json:"temp_normal,omitempty"`
	TempReduced *float64 `json:"temp_reduced,omitempty"`

	Schedule *WeeklySchedule `json:"schedule,omitempty"`
}

// DHWConfig holds the domestic hot water settings.
type DHWConfig struct {
	Active     bool     `json:"active"`
	TempTarget *float64 `json:"temp_target,omitempty"`

	Schedule            *WeeklySchedule `json:"schedule,omitempty"`
	CirculationSchedule *WeeklySchedule `json:"circulation_schedule,omitempty"`
}

// ConfigSnapshot is the configuration-bearing state of the heat pump as
// fetched in one call.
type ConfigSnapshot struct {
	Circuits []CircuitConfig `json:"circuits"`
	DHW      *DHWConfig      `json:"dhw,omitempty"`
}

// circuitSetpoints is the schedule-free slice of a circuit used as its own
// change-detection feature, so a setpoint tweak and a schedule edit show up
// as separate changelog items.
type circuitSetpoints struct {
	CircuitID   int      `json:"circuit_id"`
	Name        *string  `json:"name,omitempty"`
	TempComfort *float64 `json:"temp_comfort,omitempty"`
	TempNormal  *float64 `json:"temp_normal,omitempty"`
	TempReduced *float64 `json:"temp_reduced,omitempty"`
}

type dhwSettings struct {
	Active     bool     `json:"active"`
	TempTarget *float64 `json:"temp_target,omitempty"`
}

// Feature is one independently tracked configuration feature.
type Feature struct {
	Key      string
	Category string
	Value    any
}

// Features decomposes the snapshot into the feature keys tracked by the
// shadow-state store. Absent features are omitted entirely so they are
// never recorded as "changed to null".
func (s *ConfigSnapshot) Features() []Feature {
	if s == nil {
		return nil
	}

	features := make([]Feature, 0, 2*len(s.Circuits)+3)

	for i := range s.Circuits {
		c := &s.Circuits[i]
		features = append(features, Feature{
			Key:      fmt.Sprintf("circuit_%d_setpoints", c.CircuitID),
			Category: "heating",
			Value: circuitSetpoints{
				CircuitID:   c.CircuitID,
				Name:        c.Name,
				TempComfort: c.TempComfort,
				TempNormal:  c.TempNormal,
				TempReduced: c.TempReduced,
			},
		})
		if c.Schedule != nil {
			features = append(features, Feature{
				Key:      fmt.Sprintf("circuit_%d_schedule", c.CircuitID),
				Category: "heating",
				Value:    *c.Schedule,
			})
		}
	}

	if s.DHW != nil {
		features = append(features, Feature{
			Key:      "dhw_settings",
			Category: "dhw",
			Value:    dhwSettings{Active: s.DHW.Active, TempTarget: s.DHW.TempTarget},
		})
		if s.DHW.Schedule != nil {
			features = append(features, Feature{
				Key:      "dhw_schedule",
				Category: "dhw",
				Value:    *s.DHW.Schedule,
			})
		}
		if s.DHW.CirculationSchedule != nil {
			features = append(features, Feature{
				Key:      "dhw_circulation_schedule",
				Category: "dhw",
				Value:    *s.DHW.CirculationSchedule,
			})
		}
	}

	return features
}
