package models

import "time"

// ChapterRef names one chapter of a Bible book.
type ChapterRef struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
}

type Highlight struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Book            string    `json:"book"`
	Chapter         int       `json:"chapter"`
	VerseNumber     int       `json:"verse_number"`
	HighlightedText string    `json:"highlighted_text"`
	Color           string    `json:"color"`
	CreatedAt       time.Time `json:"created_at"`
}

type Note struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Book        string    `json:"book"`
	Chapter     int       `json:"chapter"`
	VerseNumber int       `json:"verse_number"`
	NoteText    string    `json:"note_text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Favorite struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Book        string    `json:"book"`
	Chapter     int       `json:"chapter"`
	VerseNumber int       `json:"verse_number"`
	CreatedAt   time.Time `json:"created_at"`
}

// AnnotationCounts is how many highlights, notes and favorites a user keeps.
type AnnotationCounts struct {
	Highlights int `json:"highlights"`
	Notes      int `json:"notes"`
	Favorites  int `json:"favorites"`
}

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatConversation is one thread with the theological assistant. Messages
// are oldest first.
type ChatConversation struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Title     string        `json:"title"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Messages  []ChatMessage `json:"messages"`
}

type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
