package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// DefaultProfilePic is the placeholder avatar assigned to users who register
// without choosing a picture.
const DefaultProfilePic = "Image/me.webp"

// FallbackAvatar is used when rendering a stored message that carries no
// avatar reference of its own.
const FallbackAvatar = "Image/Friends.webp"

// StringList is a list of usernames stored as a JSONB column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported type for StringList: %T", value)
	}
}

// User represents a registered chat identity. Friends holds the usernames on
// the other side of accepted friendship edges; PendingRequests holds the
// usernames of incoming, unresolved friend requests.
type User struct {
	gorm.Model
	Username        string     `gorm:"size:255;uniqueIndex;not null"`
	ProfilePic      string     `gorm:"size:512"`
	Friends         StringList `gorm:"type:jsonb"`
	PendingRequests StringList `gorm:"type:jsonb"`
}
