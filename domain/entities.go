package domain

// StageCategoryWon marks pipeline stages that close a deal successfully.
const StageCategoryWon = "won"

// Contact represents a person or company record in the CRM.
type Contact struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	OwnerID        int64  `json:"owner_id"`
	IsOrganization bool   `json:"is_organization"`
}

// Deal represents a sales opportunity attached to a contact.
type Deal struct {
	ID        int64  `json:"id,omitempty"`
	Name      string `json:"name"`
	ContactID int64  `json:"contact_id"`
	OwnerID   int64  `json:"owner_id"`
	StageID   int64  `json:"stage_id,omitempty"`
}

// Stage is a step of a sales pipeline.
type Stage struct {
	ID       int64  `json:"id"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category"`
	Active   bool   `json:"active"`
}

// User is a CRM account user.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
