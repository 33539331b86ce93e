package harness

import (
	"context"
	"fmt"
	"sort"

	"github.com/cosmicds/cosmicds/internal/marker"
	"github.com/cosmicds/cosmicds/internal/measurement"
	"github.com/cosmicds/cosmicds/internal/remote"
	"github.com/cosmicds/cosmicds/internal/story"
	"github.com/cosmicds/cosmicds/internal/testutil"
	"github.com/cosmicds/cosmicds/internal/value"
)

// opFunc performs one step against a session and returns the step's own
// result fields.
type opFunc func(ctx context.Context, app *story.App, args map[string]any) (map[string]any, error)

// Step operations.
const (
	OpStart               = "start"
	OpSetMarker           = "set_marker"
	OpNext                = "next"
	OpBack                = "back"
	OpSelectGalaxy        = "select_galaxy"
	OpSelectRow           = "select_row"
	OpSetRestWavelength   = "set_rest_wavelength"
	OpMeasureWavelength   = "measure_wavelength"
	OpAddCurrentVelocity  = "add_current_velocity"
	OpCompleteDopplerCalc = "complete_doppler_calc"
	OpUpdateVelocities    = "update_velocities"
	OpAddStudentVelocity  = "add_student_velocity"
	OpRemoveMeasurement   = "remove_measurement"
	OpSetDarkMode         = "set_dark_mode"
	OpSetSyncEnabled      = "set_sync_enabled"
	OpRequestStudentReset = "request_student_reset"
	OpSave                = "save"
	OpSetStoryField       = "set_story_field"
)

var operations = map[string]opFunc{
	OpStart: func(ctx context.Context, app *story.App, _ map[string]any) (map[string]any, error) {
		if err := app.Start(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"student_id": app.StudentID()}, nil
	},
	OpSetMarker: func(_ context.Context, app *story.App, args map[string]any) (map[string]any, error) {
		m, err := argString(args, "marker")
		if err != nil {
			return nil, err
		}
		return nil, app.Stage().SetMarker(m)
	},
	OpNext: func(_ context.Context, app *story.App, _ map[string]any) (map[string]any, error) {
		return nil, app.Stage().Next()
	},
	OpBack: func(_ context.Context, app *story.App, _ map[string]any) (map[string]any, error) {
		return nil, app.Stage().Back()
	},
	OpSelectGalaxy: func(_ context.Context, app *story.App, args map[string]any) (map[string]any, error) {
		galaxy, ok := args["galaxy"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("arg %q must be a mapping", "galaxy")
		}
		added, err := app.Stage().SelectGalaxy(galaxy)
		if err != nil {
			return nil, err
		}
		return map[string]any{"added": added, "gals_total": app.Stage().Measurements().Len()}, nil
	},
	OpSelectRow: func(_ context.Context, app *story.App, args map[string]any) (map[string]any, error) {
		idx, err := argInt(args, "index")
		if err != nil {
			return nil, err
		}
		return nil, app.Stage().SelectRow(idx)
	},
	OpSetRestWavelength: func(_ context.Context, app *story.App, args map[string]any) (map[string]any, error) {
		el, err := argString(args, "element")
		if err != nil {
			return nil, err
		}
		if err := app.Stage().SetRestWavelength(el); err != nil {
			return nil, err
		}
		return map[string]any{"lambda_rest": measurement.RestWavelength(el)}, nil
	},
	OpMeasureWavelength: func(_ context.Context, app *story.App, args map[string]any) (map[string]any, error) {
		v, err := argFloat(args, "value")
		if err != nil {
			return nil, err
		}
		if err := app.Stage().MeasureWavelength(v); err != nil {
			return nil, err
		}
		return map[string]any{"lambda_obs": app.Stage().State().GetFloat(story.FieldLambdaObs)}, nil
	},
	OpAddCurrentVelocity: func(_ context.Context, app *story.App, _ map[string]any) (map[string]any, error) {
		vel, err := app.Stage().AddCurrentVelocity()
		if err != nil {
			return nil, err
		}
		return map[string]any{"velocity": vel}, nil
	},
	OpCompleteDopplerCalc: func(_ context.Context, app *story.App, _ map[string]any) (map[string]any, error) {
		if err := app.Stage().CompleteDopplerCalc(); err != nil {
			return nil, err
		}
		return map[string]any{"velocity_tool": app.Stage().VelocityToolEnabled()}, nil
	},
	OpUpdateVelocities: func(_ context.Context, app *story.App, _ map[string]any) (map[string]any, error) {
		n, err := app.Stage().UpdateVelocities()
		return map[string]any{"updated": n}, err
	},
	OpAddStudentVelocity: func(_ context.Context, app *story.App, args map[string]any) (map[string]any, error) {
		v, err := argFloat(args, "value")
		if err != nil {
			return nil, err
		}
		return nil, app.Stage().AddStudentVelocity(v)
	},
	OpRemoveMeasurement: func(_ context.Context, app *story.App, args map[string]any) (map[string]any, error) {
		name, err := argString(args, "name")
		if err != nil {
			return nil, err
		}
		removed, err := app.Stage().RemoveMeasurement(name)
		return map[string]any{"removed": removed}, err
	},
	OpSetDarkMode: func(_ context.Context, app *story.App, args map[string]any) (map[string]any, error) {
		dark, err := argBool(args, "dark")
		if err != nil {
			return nil, err
		}
		if err := app.SetDarkMode(dark); err != nil {
			return nil, err
		}
		return map[string]any{"selected_color": app.Stage().SelectedColor()}, nil
	},
	OpSetSyncEnabled: func(_ context.Context, app *story.App, args map[string]any) (map[string]any, error) {
		on, err := argBool(args, "enabled")
		if err != nil {
			return nil, err
		}
		return nil, app.SetSyncEnabled(on)
	},
	OpRequestStudentReset: func(_ context.Context, app *story.App, _ map[string]any) (map[string]any, error) {
		if err := app.RequestStudentReset(); err != nil {
			return nil, err
		}
		return map[string]any{"student_id": app.StudentID()}, nil
	},
	OpSave: func(_ context.Context, app *story.App, _ map[string]any) (map[string]any, error) {
		app.Save()
		return nil, nil
	},
	OpSetStoryField: func(_ context.Context, app *story.App, args map[string]any) (map[string]any, error) {
		field, err := argString(args, "field")
		if err != nil {
			return nil, err
		}
		v, ok := args["value"]
		if !ok {
			return nil, fmt.Errorf("missing arg %q", "value")
		}
		return nil, app.Story().Set(field, v)
	},
}

var remoteOps = map[string]bool{
	remote.OpFetchStoryState:   true,
	remote.OpWriteStoryState:   true,
	remote.OpNewDummyStudent:   true,
	remote.OpSubmitMeasurement: true,
}

// Ops returns the names of all step operations.
func Ops() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// completionResult merges the step result with the session position.
func completionResult(app *story.App, extra map[string]any) map[string]any {
	out := map[string]any{
		marker.FieldMarker:    app.Stage().Marker(),
		marker.FieldStepIndex: app.Story().GetInt(marker.FieldStepIndex),
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// remoteArgs summarizes a recorded remote call for the trace.
func remoteArgs(call testutil.Call) map[string]any {
	switch call.Op {
	case remote.OpFetchStoryState:
		return map[string]any{"student_id": call.StudentID, "story": call.Story}
	case remote.OpWriteStoryState:
		args := map[string]any{"student_id": call.StudentID, "story": call.Story}
		if v, ok := call.State[marker.FieldStepIndex]; ok {
			args[marker.FieldStepIndex] = value.ToGo(v)
		}
		return args
	case remote.OpNewDummyStudent:
		args := map[string]any{"seed": call.Seed}
		if call.TeamMember != nil {
			args["team_member"] = *call.TeamMember
		}
		return args
	case remote.OpSubmitMeasurement:
		args := map[string]any{"student_id": call.StudentID}
		if call.Payload.GalaxyName != nil {
			args["galaxy_name"] = *call.Payload.GalaxyName
		}
		if call.Payload.VelocityValue != nil {
			args["velocity_value"] = *call.Payload.VelocityValue
		}
		return args
	default:
		return nil
	}
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing arg %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("arg %q must be a string, got %T", key, v)
	}
	return s, nil
}

func argInt(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing arg %q", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("arg %q must be an integer, got %T", key, v)
	}
}

func argFloat(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing arg %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("arg %q must be a number, got %T", key, v)
	}
}

func argBool(args map[string]any, key string) (bool, error) {
	v, ok := args[key]
	if !ok {
		return false, fmt.Errorf("missing arg %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("arg %q must be a boolean, got %T", key, v)
	}
	return b, nil
}
