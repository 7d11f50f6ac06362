package domain

import (
	"time"

	"github.com/lib/pq"
)

// VoteType - направление голоса за пост.
type VoteType string

const (
	VoteUp   VoteType = "upvote"
	VoteDown VoteType = "downvote"
)

// Valid проверяет, что значение голоса допустимо.
func (v VoteType) Valid() bool {
	return v == VoteUp || v == VoteDown
}

// Категории уведомлений.
const (
	NotificationCourseActivity = "course_activity"
	NotificationComment        = "comment"
)

// Profile представляет профиль пользователя.
type Profile struct {
	ID               string         `json:"id" gorm:"type:varchar(255);primary_key"`
	Username         string         `json:"username" gorm:"type:varchar(255);not null"`
	Role             string         `json:"role" gorm:"type:varchar(64)"`
	Interests        pq.StringArray `json:"interests" gorm:"type:text[]"`
	ReputationPoints int            `json:"reputation_points" gorm:"not null;default:0"`
	AvatarURL        string         `json:"avatar_url,omitempty" gorm:"type:text"`
	CreatedAt        time.Time      `json:"created_at" gorm:"not null;default:now()"`
	UpdatedAt        time.Time      `json:"updated_at" gorm:"not null;default:now()"`
}

// HasInterest сообщает, входит ли категория в интересы профиля.
func (p *Profile) HasInterest(category string) bool {
	for _, i := range p.Interests {
		if i == category {
			return true
		}
	}
	return false
}

// Post представляет вопрос (пост) в системе.
type Post struct {
	ID           string         `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID       string         `json:"user_id" gorm:"type:varchar(255);not null;index"`
	Title        string         `json:"title" gorm:"type:varchar(255);not null"`
	Context      string         `json:"context" gorm:"type:text;not null"`
	Author       string         `json:"author" gorm:"type:varchar(255)"`
	Category     string         `json:"category" gorm:"type:varchar(255);index"`
	Tags         pq.StringArray `json:"tags" gorm:"type:text[]"`
	ImageURL     string         `json:"image_url,omitempty" gorm:"type:text"`
	Upvotes      int            `json:"upvotes" gorm:"not null;default:0"`
	Downvotes    int            `json:"downvotes" gorm:"not null;default:0"`
	AnswersCount int            `json:"answers_count" gorm:"not null;default:0"`
	IsAnswered   bool           `json:"is_answered" gorm:"not null;default:false"`
	CreatedAt    time.Time      `json:"created_at" gorm:"not null;default:now()"`
}

// Answer - ответ на пост.
type Answer struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PostID    string    `json:"post_id" gorm:"type:uuid;not null;index"`
	UserID    string    `json:"user_id" gorm:"type:varchar(255);not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Likes     int       `json:"likes" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
	Username  string    `json:"username,omitempty" gorm:"->;-:migration"`
}

// Reply - ответ на ответ (комментарий второго уровня).
type Reply struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	AnswerID  string    `json:"answer_id" gorm:"type:uuid;not null;index"`
	UserID    string    `json:"user_id" gorm:"type:varchar(255);not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
	Username  string    `json:"username,omitempty" gorm:"->;-:migration"`
}

// TableName задает имя таблицы для ответов на ответы.
func (Reply) TableName() string { return "answer_replies" }

// PostVote - голос пользователя за пост. Пара (post, user) уникальна.
type PostVote struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PostID    string    `json:"post_id" gorm:"type:uuid;not null;uniqueIndex:idx_post_votes_post_user"`
	UserID    string    `json:"user_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_post_votes_post_user"`
	VoteType  VoteType  `json:"vote_type" gorm:"type:varchar(16);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
}

// VoteResult - состояние счетчиков поста после голосования.
type VoteResult struct {
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
	UserVote  *VoteType `json:"userVote"`
}

// Notification - уведомление для пользователя.
type Notification struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID    string    `json:"user_id" gorm:"type:varchar(255);not null;index"`
	ActorID   string    `json:"actor_id" gorm:"type:varchar(255);not null"`
	Category  string    `json:"category" gorm:"type:varchar(64);not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Link      string    `json:"link" gorm:"type:text"`
	IsRead    bool      `json:"is_read" gorm:"not null;default:false;index"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
}

// Actor - краткие сведения об инициаторе уведомления.
type Actor struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// NotificationView - уведомление, обогащенное данными инициатора.
type NotificationView struct {
	*Notification
	Actor *Actor `json:"actor"`
}
