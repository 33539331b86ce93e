package story

import (
	"github.com/cosmicds/cosmicds/internal/marker"
	"github.com/cosmicds/cosmicds/internal/state"
)

// Application state fields.
const (
	FieldAlternateRuntime = "using_alternate_runtime"
	FieldDarkMode         = "dark_mode"
	FieldStudent          = "student"
	FieldSyncEnabled      = "sync_enabled"
	FieldResetStudent     = "reset_student_requested"
)

// Story state fields besides the marker machine's step fields.
const (
	FieldName         = "name"
	FieldStageIndex   = "stage_index"
	FieldStudentUser  = "student_user"
	FieldSpectrumData = "spectrum_data"
	FieldDatasets     = "datasets"
)

// Stage state fields besides the marker machine's.
const (
	FieldGalsTotal           = "gals_total"
	FieldGalsMax             = "gals_max"
	FieldSelectedIndex       = "selected_index"
	FieldLambdaRest          = "lambda_rest"
	FieldLambdaObs           = "lambda_obs"
	FieldElement             = "element"
	FieldWavelineSet         = "waveline_set"
	FieldStudentVel          = "student_vel"
	FieldDopplerCalcComplete = "doppler_calc_complete"
)

// GalsMax is the number of galaxies a student collects.
const GalsMax = 5

func appFields(syncEnabled bool) []state.Field {
	return []state.Field{
		{Name: FieldAlternateRuntime, Kind: state.Bool},
		{Name: FieldDarkMode, Kind: state.Bool, Default: true},
		{Name: FieldStudent, Kind: state.Object, Default: map[string]any{}},
		{Name: FieldSyncEnabled, Kind: state.Bool, Default: syncEnabled},
		{Name: FieldResetStudent, Kind: state.Bool},
	}
}

func storyFields(def StoryDef, stageIndex int, datasets []string) []state.Field {
	return []state.Field{
		{Name: FieldName, Kind: state.String, Default: def.Name},
		{Name: FieldStageIndex, Kind: state.Int, Default: stageIndex},
		{Name: marker.FieldStepIndex, Kind: state.Int},
		{Name: marker.FieldStepComplete, Kind: state.Bool},
		{Name: FieldStudentUser, Kind: state.Object, Default: map[string]any{}},
		{Name: FieldSpectrumData, Kind: state.String},
		{Name: FieldDatasets, Kind: state.StringList, Default: datasets},
	}
}

func stageFields(seq *marker.Sequence) []state.Field {
	return append(marker.StageFields(seq),
		state.Field{Name: FieldGalsTotal, Kind: state.Int},
		state.Field{Name: FieldGalsMax, Kind: state.Int, Default: GalsMax},
		state.Field{Name: FieldSelectedIndex, Kind: state.Int, Default: -1},
		state.Field{Name: FieldLambdaRest, Kind: state.Float},
		state.Field{Name: FieldLambdaObs, Kind: state.Float},
		state.Field{Name: FieldElement, Kind: state.String},
		state.Field{Name: FieldWavelineSet, Kind: state.Bool},
		state.Field{Name: FieldStudentVel, Kind: state.Float},
		state.Field{Name: FieldDopplerCalcComplete, Kind: state.Bool},
	)
}
