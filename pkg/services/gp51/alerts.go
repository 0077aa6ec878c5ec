package gp51

import (
	"fmt"
	"time"

	"github.com/envio-tools/fleet-atlas/pkg/services/validation"
)

type AlertType string

const (
	AlertOverspeed   AlertType = "overspeed"
	AlertAlarm       AlertType = "alarm"
	AlertLowBattery  AlertType = "low_battery"
	AlertTemperature AlertType = "temperature"
	AlertOffline     AlertType = "offline"
)

type Alert struct {
	DeviceID string
	Type     AlertType
	Message  string
	Value    float64
	RaisedAt time.Time
}

type AlertSettings struct {
	SpeedLimitKmh     float64
	MinBatteryPercent int
	MaxTemperature    float64
	OfflineAfter      time.Duration
}

func DefaultAlertSettings() AlertSettings {
	return AlertSettings{
		SpeedLimitKmh:     120,
		MinBatteryPercent: 20,
		MaxTemperature:    70,
		OfflineAfter:      30 * time.Minute,
	}
}

// DeriveAlerts inspects a position batch and raises alerts for overspeed,
// device alarm flags, low battery, abnormal temperature, and devices that
// have not reported within the offline window.
func DeriveAlerts(positions []validation.Position, settings AlertSettings, now time.Time) []Alert {
	var alerts []Alert
	for _, p := range positions {
		if p.Speed > settings.SpeedLimitKmh {
			alerts = append(alerts, Alert{
				DeviceID: p.DeviceID,
				Type:     AlertOverspeed,
				Message:  fmt.Sprintf("speed %.1f km/h exceeds limit %.1f km/h", p.Speed, settings.SpeedLimitKmh),
				Value:    p.Speed,
				RaisedAt: now,
			})
		}
		if p.Alarm != 0 {
			alerts = append(alerts, Alert{
				DeviceID: p.DeviceID,
				Type:     AlertAlarm,
				Message:  fmt.Sprintf("device raised alarm flags %#x", p.Alarm),
				Value:    float64(p.Alarm),
				RaisedAt: now,
			})
		}
		if p.Battery > 0 && p.Battery < settings.MinBatteryPercent {
			alerts = append(alerts, Alert{
				DeviceID: p.DeviceID,
				Type:     AlertLowBattery,
				Message:  fmt.Sprintf("battery at %d%%", p.Battery),
				Value:    float64(p.Battery),
				RaisedAt: now,
			})
		}
		if p.Temperature > settings.MaxTemperature {
			alerts = append(alerts, Alert{
				DeviceID: p.DeviceID,
				Type:     AlertTemperature,
				Message:  fmt.Sprintf("temperature %.1f above %.1f", p.Temperature, settings.MaxTemperature),
				Value:    p.Temperature,
				RaisedAt: now,
			})
		}
		if p.UpdateTime > 0 {
			last := time.UnixMilli(p.UpdateTime)
			if now.Sub(last) > settings.OfflineAfter {
				alerts = append(alerts, Alert{
					DeviceID: p.DeviceID,
					Type:     AlertOffline,
					Message:  fmt.Sprintf("no report since %s", last.UTC().Format(time.RFC3339)),
					Value:    now.Sub(last).Minutes(),
					RaisedAt: now,
				})
			}
		}
	}
	return alerts
}
