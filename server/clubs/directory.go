package clubs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/topi314/clubhouse/server/store"
)

func NewDirectory(s store.Store, ledger *Ledger) *Directory {
	return &Directory{
		store:  s,
		ledger: ledger,
		now:    time.Now,
		newID:  newID,
	}
}

// newID returns a time ordered id so posts written in the same millisecond keep their
// creation order when sorted by key.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Directory covers users, clubs, events and posts outside the membership and
// registration rules.
type Directory struct {
	store  store.Store
	ledger *Ledger
	now    func() time.Time
	newID  func() string
}

// EnsureUser returns the user with the given id and creates it first if it does not exist yet.
func (d *Directory) EnsureUser(ctx context.Context, userID string, username string, email string) (User, error) {
	if err := validID("user id", userID); err != nil {
		return User{}, err
	}

	user, err := d.GetUser(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	user = User{
		ID:        userID,
		Username:  username,
		Email:     email,
		CreatedAt: d.now().UnixMilli(),
	}
	if err = d.store.Set(ctx, userPath(userID), user); err != nil {
		return User{}, storeError(err, nil, "failed to create user")
	}

	slog.InfoContext(ctx, "Created user", slog.String("user_id", userID))
	return user, nil
}

func (d *Directory) GetUser(ctx context.Context, userID string) (User, error) {
	if err := validID("user id", userID); err != nil {
		return User{}, err
	}
	var user User
	if err := d.get(ctx, userPath(userID), ErrUserNotFound, &user); err != nil {
		return User{}, err
	}
	user.ID = userID
	return user, nil
}

func (d *Directory) GetClub(ctx context.Context, clubID string) (Club, error) {
	return d.ledger.club(ctx, clubID)
}

func (d *Directory) ListClubs(ctx context.Context) ([]Club, error) {
	nodes, err := d.store.Query(ctx, store.CollectionClubs, store.Filter{})
	if err != nil {
		return nil, storeError(err, nil, "failed to query clubs")
	}

	clubs := make([]Club, 0, len(nodes))
	for _, node := range nodes {
		var club Club
		if err = node.Decode(&club); err != nil {
			slog.WarnContext(ctx, "Skipping malformed club", slog.String("path", node.Path.String()), slog.Any("err", err))
			continue
		}
		club.ID = node.Path.Key
		clubs = append(clubs, club)
	}
	return clubs, nil
}

// CreateClub creates a club administered by creatorID, who also becomes its first member.
func (d *Directory) CreateClub(ctx context.Context, creatorID string, input CreateClubInput) (Club, error) {
	if err := input.Validate(); err != nil {
		return Club{}, err
	}
	if _, err := d.GetUser(ctx, creatorID); err != nil {
		return Club{}, err
	}

	club := Club{
		ID:          d.newID(),
		Name:        input.Name,
		Description: input.Description,
		ImageURL:    input.ImageURL,
		AdminID:     creatorID,
		CreatedAt:   d.now().UnixMilli(),
	}
	if err := d.store.Set(ctx, clubPath(club.ID), club); err != nil {
		return Club{}, storeError(err, nil, "failed to create club")
	}
	slog.InfoContext(ctx, "Created club", slog.String("club_id", club.ID), slog.String("admin_id", creatorID))

	if _, err := d.ledger.Join(ctx, creatorID, club.ID); err != nil {
		return Club{}, err
	}
	return d.GetClub(ctx, club.ID)
}

func (d *Directory) EditClub(ctx context.Context, clubID string, actorID string, input EditClubInput) (Club, error) {
	fields, err := input.fields()
	if err != nil {
		return Club{}, err
	}
	club, err := d.adminClub(ctx, clubID, actorID)
	if err != nil {
		return Club{}, err
	}
	if len(fields) == 0 {
		return club, nil
	}

	if err = d.store.Update(ctx, clubPath(clubID), fields); err != nil {
		return Club{}, storeError(err, ErrClubNotFound, "failed to update club")
	}
	return d.GetClub(ctx, clubID)
}

// TransferAdmin hands the club over to newAdminID, who has to be a member already.
func (d *Directory) TransferAdmin(ctx context.Context, clubID string, actorID string, newAdminID string) error {
	if err := validID("new admin id", newAdminID); err != nil {
		return err
	}
	if _, err := d.adminClub(ctx, clubID, actorID); err != nil {
		return err
	}

	member, err := d.ledger.IsMember(ctx, newAdminID, clubID)
	if err != nil {
		return err
	}
	if !member {
		return ErrMembershipRequired
	}

	if err = d.store.Update(ctx, clubPath(clubID), map[string]any{fieldAdminID: newAdminID}); err != nil {
		return storeError(err, ErrClubNotFound, "failed to transfer club")
	}

	slog.InfoContext(ctx, "Transferred club", slog.String("club_id", clubID), slog.String("old_admin_id", actorID), slog.String("new_admin_id", newAdminID))
	return nil
}

func (d *Directory) GetEvent(ctx context.Context, eventID string) (Event, error) {
	if err := validID("event id", eventID); err != nil {
		return Event{}, err
	}
	return getEvent(ctx, d.store, eventID)
}

func (d *Directory) ListEvents(ctx context.Context, clubID string) ([]Event, error) {
	if _, err := d.GetClub(ctx, clubID); err != nil {
		return nil, err
	}

	nodes, err := d.store.Query(ctx, store.CollectionEvents, store.Eq(fieldClubID, clubID))
	if err != nil {
		return nil, storeError(err, nil, "failed to query events")
	}

	events := make([]Event, 0, len(nodes))
	for _, node := range nodes {
		var event Event
		if err = node.Decode(&event); err != nil {
			slog.WarnContext(ctx, "Skipping malformed event", slog.String("path", node.Path.String()), slog.Any("err", err))
			continue
		}
		event.ID = node.Path.Key
		events = append(events, event)
	}
	return events, nil
}

func (d *Directory) CreateEvent(ctx context.Context, clubID string, actorID string, input CreateEventInput) (Event, error) {
	if err := input.Validate(); err != nil {
		return Event{}, err
	}
	if _, err := d.adminClub(ctx, clubID, actorID); err != nil {
		return Event{}, err
	}

	event := Event{
		ID:               d.newID(),
		ClubID:           clubID,
		Title:            input.Title,
		Description:      input.Description,
		Venue:            input.Venue,
		Date:             input.Date,
		MaxParticipants:  input.MaxParticipants,
		RegistrationOpen: input.RegistrationOpen,
		RegisteredUsers:  map[string]any{},
	}
	if err := d.store.Set(ctx, eventPath(event.ID), event); err != nil {
		return Event{}, storeError(err, nil, "failed to create event")
	}

	slog.InfoContext(ctx, "Created event", slog.String("club_id", clubID), slog.String("event_id", event.ID))
	return event, nil
}

// SetRegistrationOpen opens or closes registration of an event. Only the admin of the
// owning club may do so.
func (d *Directory) SetRegistrationOpen(ctx context.Context, eventID string, actorID string, open bool) error {
	event, err := d.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if _, err = d.adminClub(ctx, event.ClubID, actorID); err != nil {
		return err
	}
	if event.RegistrationOpen == open {
		return nil
	}

	if err = d.store.Update(ctx, eventPath(eventID), map[string]any{fieldRegistrationOpen: open}); err != nil {
		return storeError(err, ErrEventNotFound, "failed to update event")
	}

	slog.InfoContext(ctx, "Changed event registration", slog.String("event_id", eventID), slog.Bool("open", open))
	return nil
}

// CreatePost publishes a post to a club. The author has to be a member, the timestamp is
// assigned by the store.
func (d *Directory) CreatePost(ctx context.Context, clubID string, authorID string, input CreatePostInput) (Post, error) {
	if err := input.Validate(); err != nil {
		return Post{}, err
	}
	if err := validID("author id", authorID); err != nil {
		return Post{}, err
	}
	if _, err := d.GetClub(ctx, clubID); err != nil {
		return Post{}, err
	}

	member, err := d.ledger.IsMember(ctx, authorID, clubID)
	if err != nil {
		return Post{}, err
	}
	if !member {
		return Post{}, ErrMembershipRequired
	}

	id := d.newID()
	doc := map[string]any{
		fieldClubID:    clubID,
		"authorId":     authorID,
		"content":      input.Content,
		fieldTimestamp: store.ServerTimestamp,
	}
	if input.ImageURL != "" {
		doc["imageUrl"] = input.ImageURL
	}
	if err = d.store.Set(ctx, postPath(id), doc); err != nil {
		return Post{}, storeError(err, nil, "failed to create post")
	}

	var post Post
	if err = d.get(ctx, postPath(id), ErrPostNotFound, &post); err != nil {
		return Post{}, err
	}
	post.ID = id
	return post, nil
}

func (d *Directory) adminClub(ctx context.Context, clubID string, actorID string) (Club, error) {
	club, err := d.GetClub(ctx, clubID)
	if err != nil {
		return Club{}, err
	}
	if actorID == "" || club.AdminID != actorID {
		return Club{}, ErrNotAuthorized
	}
	return club, nil
}

func (d *Directory) get(ctx context.Context, path store.Path, notFound error, v any) error {
	node, err := d.store.Get(ctx, path)
	if err != nil {
		return storeError(err, notFound, "failed to read "+path.Collection)
	}
	if err = node.Decode(v); err != nil {
		return storeError(err, nil, "failed to decode "+path.Collection)
	}
	return nil
}
