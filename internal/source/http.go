package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/soldalen/heatpumpctl/internal/errors"
)

const httpTimeout = 15 * time.Second

// HTTPHeatPump reads snapshots from a vendor bridge over HTTP. The bridge
// owns authentication against the cloud API; this side only fetches JSON
// and maps transport failures onto the source error taxonomy.
type HTTPHeatPump struct {
	baseURL string
	client  *http.Client
}

func NewHTTPHeatPump(host string) *HTTPHeatPump {
	return &HTTPHeatPump{
		baseURL: normalizeHost(host),
		client:  &http.Client{Timeout: httpTimeout},
	}
}

// heatPumpSnapshot is the bridge's wire format for one batched fetch.
type heatPumpSnapshot struct {
	OutsideTemperature    *float64 `json:"outside_temperature"`
	ReturnTemperature     *float64 `json:"return_temperature"`
	DHWStorageTemperature *float64 `json:"dhw_storage_temperature"`

	Circuits []struct {
		CircuitID         int      `json:"circuit_id"`
		SupplyTemperature *float64 `json:"supply_temperature"`
		PumpStatus        *string  `json:"pump_status"`
	} `json:"circuits"`

	CompressorModulation   *float64 `json:"compressor_modulation"`
	RatedPowerKW           *float64 `json:"rated_power_kw"`
	CompressorRuntimeHours *float64 `json:"compressor_runtime_hours"`

	CirculationPumpActive bool `json:"circulation_pump_active"`

	Configuration *ConfigSnapshot `json:"configuration,omitempty"`
}

func (h *HTTPHeatPump) ReadSnapshot(ctx context.Context, now time.Time) (*HeatPumpReading, error) {
	var snapshot heatPumpSnapshot
	if err := getJSON(ctx, h.client, h.baseURL+"/v1/snapshot", &snapshot); err != nil {
		return nil, err
	}

	reading := &HeatPumpReading{
		Timestamp:              now,
		OutsideTemperature:     snapshot.OutsideTemperature,
		ReturnTemperature:      snapshot.ReturnTemperature,
		DHWStorageTemperature:  snapshot.DHWStorageTemperature,
		CompressorModulation:   snapshot.CompressorModulation,
		RatedPowerKW:           snapshot.RatedPowerKW,
		CompressorRuntimeHours: snapshot.CompressorRuntimeHours,
		CirculationPumpActive:  snapshot.CirculationPumpActive,
		Configuration:          snapshot.Configuration,
	}
	for _, c := range snapshot.Circuits {
		reading.Circuits = append(reading.Circuits, CircuitReading{
			CircuitID:         c.CircuitID,
			SupplyTemperature: c.SupplyTemperature,
			PumpStatus:        c.PumpStatus,
		})
	}

	return reading, nil
}

func (h *HTTPHeatPump) ReadConfig(ctx context.Context, _ time.Time) (*ConfigSnapshot, error) {
	var snapshot ConfigSnapshot
	if err := getJSON(ctx, h.client, h.baseURL+"/v1/config", &snapshot); err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// ShellyPowerMeter reads a Shelly meter's local status endpoint. Gen1
// devices report under "meters", the EM variants under "emeters"; the
// first channel carries the heat pump's feed.
type ShellyPowerMeter struct {
	baseURL string
	client  *http.Client
}

func NewShellyPowerMeter(host string) *ShellyPowerMeter {
	return &ShellyPowerMeter{
		baseURL: normalizeHost(host),
		client:  &http.Client{Timeout: httpTimeout},
	}
}

type shellyStatus struct {
	Meters []struct {
		Power float64  `json:"power"`
		Total *float64 `json:"total"`
	} `json:"meters"`
	EMeters []struct {
		Power   float64  `json:"power"`
		Voltage *float64 `json:"voltage"`
		Current *float64 `json:"current"`
		Total   *float64 `json:"total"`
	} `json:"emeters"`
}

func (s *ShellyPowerMeter) ReadSnapshot(ctx context.Context, now time.Time) (*PowerReading, error) {
	var status shellyStatus
	if err := getJSON(ctx, s.client, s.baseURL+"/status", &status); err != nil {
		return nil, err
	}

	reading := &PowerReading{Timestamp: now}
	switch {
	case len(status.EMeters) > 0:
		m := status.EMeters[0]
		reading.PowerWatts = m.Power
		reading.Voltage = m.Voltage
		reading.Current = m.Current
		reading.TotalEnergyWh = m.Total
	case len(status.Meters) > 0:
		m := status.Meters[0]
		reading.PowerWatts = m.Power
		reading.TotalEnergyWh = m.Total
	default:
		return nil, errors.New().WithMessage(ErrPartialData, "status response carries no meter channel")
	}

	return reading, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	errFactory := errors.New()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errFactory.Wrap(ErrTransport, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return errFactory.WithMessage(ErrRateLimited, "upstream returned 429")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errFactory.WithData(ErrAuth, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return errFactory.WithMessage(ErrTransport, fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, url))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errFactory.Wrap(ErrPartialData, err)
	}

	return nil
}

func normalizeHost(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimRight(host, "/")
	}

	return "http://" + strings.TrimRight(host, "/")
}
