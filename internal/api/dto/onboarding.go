package dto

type AdvanceStepRequest struct {
	Step int `json:"step"`
}

func (r AdvanceStepRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Step < 1 {
		errors["step"] = "Step must be at least 1"
	}

	return errors
}

type AdvanceStepResponse struct {
	Ok       bool `json:"ok"`
	NextStep *int `json:"next_step,omitempty"`
}

type OnboardingStatusResponse struct {
	Step        int     `json:"step"`
	TotalSteps  int     `json:"total_steps"`
	Percent     int     `json:"percent"`
	IsCompleted bool    `json:"is_completed"`
	StartedAt   int64   `json:"started_at"`
	CompletedAt *int64  `json:"completed_at,omitempty"`
	OrgName     string  `json:"org_name"`
	OrgImage    string  `json:"org_image,omitempty"`
}
