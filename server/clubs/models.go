package clubs

import (
	"github.com/topi314/clubhouse/internal/omit"
)

const (
	fieldMemberCount      = "memberCount"
	fieldAdminID          = "adminId"
	fieldClubID           = "clubId"
	fieldUserID           = "userId"
	fieldRegisteredUsers  = "registeredUsers"
	fieldRegistrationOpen = "registrationOpen"
	fieldTimestamp        = "timestamp"
)

type Club struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	AdminID     string `json:"adminId"`
	MemberCount int    `json:"memberCount"`
	CreatedAt   int64  `json:"createdAt"`
}

type Membership struct {
	UserID   string `json:"userId"`
	ClubID   string `json:"clubId"`
	JoinedAt int64  `json:"joinedAt"`
}

func (m Membership) Key() MembershipKey {
	return MembershipKey{UserID: m.UserID, ClubID: m.ClubID}
}

type Event struct {
	ID               string         `json:"id"`
	ClubID           string         `json:"clubId"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Venue            string         `json:"venue"`
	Date             int64          `json:"date"`
	MaxParticipants  int            `json:"maxParticipants"`
	RegistrationOpen bool           `json:"registrationOpen"`
	RegisteredUsers  map[string]any `json:"registeredUsers"`
}

type Post struct {
	ID        string `json:"id"`
	ClubID    string `json:"clubId"`
	AuthorID  string `json:"authorId"`
	Content   string `json:"content"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt int64  `json:"createdAt"`
}

type CreateClubInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

func (i CreateClubInput) Validate() error {
	if i.Name == "" {
		return invalidInput("club name is required")
	}
	return nil
}

type EditClubInput struct {
	Name        omit.Omit[string] `json:"name"`
	Description omit.Omit[string] `json:"description"`
	ImageURL    omit.Omit[string] `json:"imageUrl"`
}

func (i EditClubInput) fields() (map[string]any, error) {
	fields := map[string]any{}
	if i.Name.OK && i.Name.Value == "" {
		return nil, invalidInput("club name must not be empty")
	}
	i.Name.Put(fields, "name")
	i.Description.Put(fields, "description")
	i.ImageURL.Put(fields, "imageUrl")
	return fields, nil
}

type CreateEventInput struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	Venue            string `json:"venue"`
	Date             int64  `json:"date"`
	MaxParticipants  int    `json:"maxParticipants"`
	RegistrationOpen bool   `json:"registrationOpen"`
}

func (i CreateEventInput) Validate() error {
	if i.Title == "" {
		return invalidInput("event title is required")
	}
	if i.MaxParticipants < 0 {
		return invalidInput("maxParticipants must not be negative")
	}
	return nil
}

type CreatePostInput struct {
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}

func (i CreatePostInput) Validate() error {
	if i.Content == "" {
		return invalidInput("post content is required")
	}
	return nil
}
