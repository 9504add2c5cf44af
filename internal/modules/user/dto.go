package user

// EditRequest fields are optional; only the ones present change.
type EditRequest struct {
	Username string `json:"username" binding:"omitempty,username"`
	Email    string `json:"email" binding:"omitempty,email,max=255"`
	Photo    string `json:"photo" binding:"omitempty,imagedataurl"`
}
