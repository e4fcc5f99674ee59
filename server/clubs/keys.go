package clubs

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/topi314/clubhouse/server/store"
)

// MembershipKey identifies a membership. At most one membership exists per key.
type MembershipKey struct {
	UserID string
	ClubID string
}

func (k MembershipKey) String() string {
	return base64.RawURLEncoding.EncodeToString([]byte(k.UserID)) + "." + base64.RawURLEncoding.EncodeToString([]byte(k.ClubID))
}

func (k MembershipKey) Path() store.Path {
	return store.NewPath(store.CollectionMemberships, k.String())
}

func ParseMembershipKey(s string) (MembershipKey, error) {
	userPart, clubPart, ok := strings.Cut(s, ".")
	if !ok {
		return MembershipKey{}, fmt.Errorf("invalid membership key %q", s)
	}
	userID, err := base64.RawURLEncoding.DecodeString(userPart)
	if err != nil {
		return MembershipKey{}, fmt.Errorf("invalid membership key %q: %w", s, err)
	}
	clubID, err := base64.RawURLEncoding.DecodeString(clubPart)
	if err != nil {
		return MembershipKey{}, fmt.Errorf("invalid membership key %q: %w", s, err)
	}
	return MembershipKey{UserID: string(userID), ClubID: string(clubID)}, nil
}

func clubPath(id string) store.Path {
	return store.NewPath(store.CollectionClubs, id)
}

func userPath(id string) store.Path {
	return store.NewPath(store.CollectionUsers, id)
}

func eventPath(id string) store.Path {
	return store.NewPath(store.CollectionEvents, id)
}

func postPath(id string) store.Path {
	return store.NewPath(store.CollectionPosts, id)
}

func validID(name string, id string) error {
	if id == "" {
		return invalidInput("%s is required", name)
	}
	if strings.Contains(id, "/") {
		return invalidInput("%s must not contain '/'", name)
	}
	return nil
}
