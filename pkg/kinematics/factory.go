// Factory functions for creating kinematics instances from configuration.
package kinematics

import (
	"strings"

	"nexmotion-go/pkg/errors"
)

// Config describes the mechanism of one group.
type Config struct {
	Type   string             // "cartesian", "corexy", "polar", "scara"
	Axes   int                // number of joints
	Rails  []Rail             // joint ranges, may be shorter than Axes
	Params map[string]float64 // type specific, e.g. link lengths
}

// MaxAxes is the largest supported joint count.
const MaxAxes = 8

// NewFromConfig creates a new kinematics instance based on the configuration.
func NewFromConfig(cfg Config) (Kinematics, error) {
	kinType := strings.ToLower(strings.TrimSpace(cfg.Type))
	if kinType == "" {
		kinType = "cartesian"
	}
	if cfg.Axes < 1 || cfg.Axes > MaxAxes {
		return nil, errors.Newf(errors.AxisCountInvalid, "kinematics %s: %d axes", kinType, cfg.Axes)
	}

	switch kinType {
	case "cartesian":
		return NewCartesianKinematics(cfg.Axes, cfg.Rails), nil

	case "corexy":
		if cfg.Axes < 2 {
			return nil, errors.Newf(errors.AxisCountInvalid, "corexy needs at least 2 axes, got %d", cfg.Axes)
		}
		return NewCoreXYKinematics(cfg.Axes, cfg.Rails), nil

	case "polar":
		if cfg.Axes < 2 {
			return nil, errors.Newf(errors.AxisCountInvalid, "polar needs at least 2 axes, got %d", cfg.Axes)
		}
		return NewPolarKinematics(cfg.Axes, cfg.Rails), nil

	case "scara":
		if cfg.Axes != 4 {
			return nil, errors.Newf(errors.AxisCountInvalid, "scara needs 4 axes, got %d", cfg.Axes)
		}
		return NewScaraKinematics(cfg.Params["l1"], cfg.Params["l2"], cfg.Rails)

	default:
		return nil, errors.Newf(errors.KinematicsTypeInvalid, "unsupported kinematics type: %s", cfg.Type)
	}
}
