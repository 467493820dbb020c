package model

import "time"

// Text block kinds.
const (
	BlockTypeCode     = "code"
	BlockTypeTerminal = "terminal"

	DefaultBlockType = BlockTypeCode
	DefaultLanguage  = "javascript"
)

// Category groups components. Name is the natural key: creating a component
// with an unknown category name creates the category, later components with
// the same name reuse it.
type Category struct {
	ID        string    `json:"id"        db:"id"`
	Name      string    `json:"name"      db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Component is a catalog entry. Owner, Category, TextBlocks and Images are
// populated by the repository when the component is loaded "joined".
type Component struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	CategoryID  string      `json:"categoryId"`
	UserID      string      `json:"userId"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Owner       *Owner      `json:"user,omitempty"`
	Category    *Category   `json:"category,omitempty"`
	TextBlocks  []TextBlock `json:"textBlocks"`
	Images      []Image     `json:"images"`
}

// TextBlock is one code or terminal snippet. Blocks are owned by their
// component and replaced wholesale on every update.
type TextBlock struct {
	ID          string    `json:"id"          db:"id"`
	ComponentID string    `json:"componentId" db:"component_id"`
	Content     string    `json:"content"     db:"content"`
	Headline    string    `json:"headline"    db:"headline"`
	BlockType   string    `json:"blockType"   db:"block_type"`
	Language    string    `json:"language"    db:"language"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
}
