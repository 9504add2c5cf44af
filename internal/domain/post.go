package domain

import "time"

type Post struct {
	ID     int64  `json:"id" gorm:"primaryKey"`
	UserID int64  `json:"userId" gorm:"index;not null"`
	Author *User  `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Prompt string `json:"prompt" gorm:"size:200;not null"`
	Photo  string `json:"photo" gorm:"not null"`

	Likes []PostLike `json:"-" gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt time.Time `json:"-"`
}

func (Post) TableName() string { return "posts" }

// PostLike links a user to a post they liked. One row per (post, user).
type PostLike struct {
	PostID    int64     `json:"postId" gorm:"primaryKey;autoIncrement:false"`
	UserID    int64     `json:"userId" gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time `json:"createdAt"`
}

func (PostLike) TableName() string { return "post_likes" }

// PostAuthor is the author summary embedded in post responses.
type PostAuthor struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Photo    string `json:"photo"`
}

type PostView struct {
	ID        int64      `json:"id"`
	User      PostAuthor `json:"user"`
	Prompt    string     `json:"prompt"`
	Photo     string     `json:"photo"`
	Likes     []int64    `json:"likes"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (p *Post) View() PostView {
	v := PostView{
		ID:        p.ID,
		Prompt:    p.Prompt,
		Photo:     p.Photo,
		Likes:     make([]int64, 0, len(p.Likes)),
		CreatedAt: p.CreatedAt,
	}
	if p.Author != nil {
		v.User = PostAuthor{ID: p.Author.ID, Username: p.Author.Username, Email: p.Author.Email, Photo: p.Author.Photo}
	} else {
		v.User = PostAuthor{ID: p.UserID}
	}
	for _, l := range p.Likes {
		v.Likes = append(v.Likes, l.UserID)
	}
	return v
}

// LikedBy reports whether userID is among the loaded likes.
func (p *Post) LikedBy(userID int64) bool {
	for _, l := range p.Likes {
		if l.UserID == userID {
			return true
		}
	}
	return false
}
