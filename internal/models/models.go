package models

import (
	"time"
)

const (
	RoleUser      = "user"
	RoleAuthor    = "author"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

type User struct {
	ID                   uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name                 string     `gorm:"not null"                 json:"name"`
	Email                string     `gorm:"uniqueIndex;not null"     json:"email"`
	Role                 string     `gorm:"not null;default:user"    json:"role"`
	PasswordHash         string     `gorm:"not null"                 json:"-"`
	PasswordChangedAt    *time.Time `json:"-"`
	PasswordResetToken   string     `json:"-"`
	PasswordResetExpires *time.Time `json:"-"`
	Active               bool       `gorm:"not null;default:true"    json:"-"`
	StripeCustomerID     string     `json:"stripe_customer_id,omitempty"`
	SubscriptionExpireAt *time.Time `json:"subscription_expire_at,omitempty"`
}

// ChangedPasswordAfter reports whether the password was changed after the
// given token issue time, i.e. the token is stale and must be rejected.
func (u *User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return issuedAt.Unix() < u.PasswordChangedAt.Unix()
}

type Course struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"    json:"id"`
	Title        string    `gorm:"not null"                    json:"title"`
	Summary      string    `gorm:"not null"                    json:"summary"`
	Author       string    `gorm:"not null"                    json:"author"`
	ImageURL     string    `json:"image_url"`
	ImageAlt     string    `json:"image_alt"`
	InstructorID uint      `gorm:"index;not null"              json:"instructor_id"`
	Category     string    `gorm:"index"                       json:"category"`
	Language     string    `gorm:"index"                       json:"language"`
	Description  string    `json:"description"`
	Topics       []string  `gorm:"serializer:json"             json:"topics"`
	Price        float64   `gorm:"not null;default:0"          json:"price"`
	LessonCount  uint      `json:"lesson_count"`
	IntroVideo   string    `json:"intro_video"`
	Modules      []Module  `gorm:"constraint:OnDelete:CASCADE" json:"modules,omitempty"`
	Published    bool      `gorm:"not null;default:false"      json:"published"`
	ReleaseDate  time.Time `gorm:"autoCreateTime"              json:"-"`
}

type Module struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"    json:"id"`
	CourseID  uint   `gorm:"index;not null"              json:"course_id"`
	Position  int    `gorm:"not null;default:0"          json:"position"`
	Title     string `json:"title"`
	Duration  string `json:"duration"`
	PlayerURL string `json:"player_url"`
	Clips     []Clip `gorm:"constraint:OnDelete:CASCADE" json:"clips"`
}

type Clip struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ModuleID  uint   `gorm:"index;not null"           json:"module_id"`
	Position  int    `gorm:"not null;default:0"       json:"position"`
	Title     string `json:"title"`
	Duration  string `json:"duration"`
	PlayerURL string `json:"player_url"`
}

// Normalize recomputes the derived course fields from its modules. Call it
// before every save: the intro video is always the first clip of the first
// module, the lesson count is the total number of clips, and a course without
// playable intro content can never stay published.
func (c *Course) Normalize() {
	c.IntroVideo = ""
	var lessons uint
	for mi := range c.Modules {
		lessons += uint(len(c.Modules[mi].Clips))
	}
	if len(c.Modules) > 0 && len(c.Modules[0].Clips) > 0 {
		c.IntroVideo = c.Modules[0].Clips[0].PlayerURL
	}
	c.LessonCount = lessons
	if c.IntroVideo == "" {
		c.Published = false
	}
}

type Purchase struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"                      json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_purchase_user_course" json:"user_id"`
	CourseID  uint      `gorm:"not null;uniqueIndex:idx_purchase_user_course" json:"course_id"`
	Price     float64   `gorm:"not null"                                      json:"price"`
	CreatedAt time.Time `json:"created_at"`
}
