package alarms

import (
	"errors"
	"time"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Def is a persistent alarm definition: a composite condition set plus
// the firing policy. WindowSeconds and MaxFreqSeconds use 0 as "unset";
// a zero LastReport means the alarm has never fired.
type Def struct {
	ID             int64       `json:"-"`
	Name           string      `json:"name"`
	Conditions     []Condition `json:"conditions"`
	WindowSeconds  int         `json:"window,omitempty"`
	MaxFreqSeconds int         `json:"max_freq,omitempty"`
	SubsGroup      string      `json:"subsgroup"`
	Status         string      `json:"status"`
	LastCheck      time.Time   `json:"last_check"`
	LastReport     time.Time   `json:"last_report,omitempty"`
}

// Validate checks definition invariants.
func (d Def) Validate() error {
	if d.Name == "" {
		return errors.New("alarm def: empty name")
	}
	if d.SubsGroup == "" {
		return errors.New("alarm def: empty subscription group")
	}
	if d.Status != StatusActive && d.Status != StatusInactive {
		return errors.New("alarm def: invalid status")
	}
	if len(d.Conditions) == 0 {
		return errors.New("alarm def: at least one condition required")
	}
	if d.WindowSeconds < 0 || d.MaxFreqSeconds < 0 {
		return errors.New("alarm def: negative window or max_freq")
	}
	if !d.LastReport.IsZero() && d.LastCheck.Before(d.LastReport) {
		return errors.New("alarm def: last_check before last_report")
	}
	for _, cond := range d.Conditions {
		if err := cond.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Window returns the observation window, ok=false when unset.
func (d Def) Window() (time.Duration, bool) {
	if d.WindowSeconds <= 0 {
		return 0, false
	}
	return time.Duration(d.WindowSeconds) * time.Second, true
}

// MaxFreq returns the minimum re-fire gap, ok=false when unset.
func (d Def) MaxFreq() (time.Duration, bool) {
	if d.MaxFreqSeconds <= 0 {
		return 0, false
	}
	return time.Duration(d.MaxFreqSeconds) * time.Second, true
}

// Reportable reports whether the max_freq gate admits a firing at now.
func (d Def) Reportable(now time.Time) bool {
	gap, ok := d.MaxFreq()
	if !ok || d.LastReport.IsZero() {
		return true
	}
	return now.After(d.LastReport.Add(gap))
}
