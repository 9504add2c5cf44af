package post

type CreatePostRequest struct {
	Prompt string `json:"prompt" binding:"required,min=5,max=200"`
	Photo  string `json:"photo" binding:"required,imagedataurl"`
}
