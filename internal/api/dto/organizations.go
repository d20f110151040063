package dto

type CreateOrganizationRequest struct {
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

func (r CreateOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Name == "" {
		errors["name"] = "Name is required"
	} else if len(r.Name) > 120 {
		errors["name"] = "Name must be at most 120 characters"
	}

	return errors
}

type CreateOrganizationResponse struct {
	OrganizationID string `json:"organization_id"`
}

type UpdateOrganizationRequest struct {
	Name  *string `json:"name,omitempty"`
	Image *string `json:"image,omitempty"`
}

func (r UpdateOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Name == nil && r.Image == nil {
		errors["name"] = "Nothing to update"
	}
	if r.Name != nil && *r.Name == "" {
		errors["name"] = "Name cannot be empty"
	}

	return errors
}

type OrganizationDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Image       string   `json:"image,omitempty"`
	OwnerID     string   `json:"owner_id"`
	Members     []string `json:"members"`
	MemberCount int      `json:"member_count"`
}
