package rca

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"
)

// Thresholds is the classification policy.
type Thresholds struct {
	// Window is the trailing period of DOWN events considered by Classify.
	Window time.Duration
	// MassFailureWorkers is the number of distinct workers that makes a
	// burst a mass failure.
	MassFailureWorkers int
	// RegionalMaxSources is the largest number of distinct source addresses
	// still reported as a regional network issue.
	RegionalMaxSources int
	// PartialMinWorkers is the smallest burst reported as a partial outage.
	PartialMinWorkers int

	BucketWidth      time.Duration
	BucketMinWorkers int
	ReportPeriod     time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Window:             5 * time.Minute,
		MassFailureWorkers: 5,
		RegionalMaxSources: 2,
		PartialMinWorkers:  2,
		BucketWidth:        10 * time.Minute,
		BucketMinWorkers:   3,
		ReportPeriod:       60 * time.Minute,
	}
}

func (t Thresholds) Validate() error {
	switch {
	case t.Window <= 0:
		return fmt.Errorf("window must be positive")
	case t.PartialMinWorkers < 2:
		return fmt.Errorf("partial_min_workers must be at least 2")
	case t.MassFailureWorkers <= t.PartialMinWorkers:
		return fmt.Errorf("mass_failure_workers must be greater than partial_min_workers")
	case t.RegionalMaxSources < 1:
		return fmt.Errorf("regional_max_sources must be at least 1")
	case t.BucketWidth <= 0 || t.ReportPeriod <= 0:
		return fmt.Errorf("bucket and report periods must be positive")
	case t.BucketMinWorkers < 1:
		return fmt.Errorf("bucket_min_workers must be at least 1")
	}
	return nil
}

type policyFile struct {
	WindowMinutes      *int `toml:"window_minutes"`
	MassFailureWorkers *int `toml:"mass_failure_workers"`
	RegionalMaxSources *int `toml:"regional_max_sources"`
	PartialMinWorkers  *int `toml:"partial_min_workers"`
	BucketMinutes      *int `toml:"bucket_minutes"`
	BucketMinWorkers   *int `toml:"bucket_min_workers"`
	ReportMinutes      *int `toml:"report_minutes"`
}

// LoadThresholdsFile overlays the keys present in the TOML file at path on
// top of base.
func LoadThresholdsFile(path string, base Thresholds) (Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	return ParseThresholds(data, base)
}

func ParseThresholds(data []byte, base Thresholds) (Thresholds, error) {
	var p policyFile
	if err := toml.Unmarshal(data, &p); err != nil {
		return base, fmt.Errorf("parse policy: %w", err)
	}
	ans := base
	minutes := func(v *int, dst *time.Duration) {
		if v != nil {
			*dst = time.Duration(*v) * time.Minute
		}
	}
	count := func(v *int, dst *int) {
		if v != nil {
			*dst = *v
		}
	}
	minutes(p.WindowMinutes, &ans.Window)
	minutes(p.BucketMinutes, &ans.BucketWidth)
	minutes(p.ReportMinutes, &ans.ReportPeriod)
	count(p.MassFailureWorkers, &ans.MassFailureWorkers)
	count(p.RegionalMaxSources, &ans.RegionalMaxSources)
	count(p.PartialMinWorkers, &ans.PartialMinWorkers)
	count(p.BucketMinWorkers, &ans.BucketMinWorkers)
	if err := ans.Validate(); err != nil {
		return base, err
	}
	return ans, nil
}
