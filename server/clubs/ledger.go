package clubs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/topi314/clubhouse/server/store"
)

func NewLedger(s store.Store, counter *Counter, atomic bool) *Ledger {
	l := &Ledger{
		store:   s,
		counter: counter,
		now:     time.Now,
	}
	if tx, ok := s.(store.Transactor); ok && atomic {
		l.tx = tx
	}
	return l
}

// Ledger owns membership records. A membership change is never rolled back because
// the club's member count could not be adjusted.
type Ledger struct {
	store   store.Store
	tx      store.Transactor
	counter *Counter
	now     func() time.Time
}

func (l *Ledger) Join(ctx context.Context, userID string, clubID string) (Membership, error) {
	if err := validID("user id", userID); err != nil {
		return Membership{}, err
	}
	if err := validID("club id", clubID); err != nil {
		return Membership{}, err
	}

	if _, err := l.store.Get(ctx, clubPath(clubID)); err != nil {
		return Membership{}, storeError(err, ErrClubNotFound, "failed to read club")
	}
	if _, err := l.store.Get(ctx, userPath(userID)); err != nil {
		return Membership{}, storeError(err, ErrUserNotFound, "failed to read user")
	}

	membership := Membership{
		UserID:   userID,
		ClubID:   clubID,
		JoinedAt: l.now().UnixMilli(),
	}
	path := membership.Key().Path()

	if l.tx != nil {
		err := l.tx.Transact(ctx, path, func(_ store.Node, exists bool) (map[string]any, error) {
			if exists {
				return nil, ErrAlreadyMember
			}
			return store.ToDoc(membership)
		})
		if err != nil {
			return Membership{}, storeError(err, nil, "failed to create membership")
		}
	} else {
		_, err := l.store.Get(ctx, path)
		if err == nil {
			return Membership{}, ErrAlreadyMember
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Membership{}, storeError(err, nil, "failed to read membership")
		}
		if err = l.store.Set(ctx, path, membership); err != nil {
			return Membership{}, storeError(err, nil, "failed to create membership")
		}
	}

	slog.InfoContext(ctx, "Member joined club", slog.String("club_id", clubID), slog.String("user_id", userID))
	l.adjustCount(ctx, clubID, 1)
	return membership, nil
}

// Leave removes the caller's own membership. The club admin has to transfer the club
// before leaving it.
func (l *Ledger) Leave(ctx context.Context, userID string, clubID string) error {
	if err := validID("user id", userID); err != nil {
		return err
	}
	club, err := l.club(ctx, clubID)
	if err != nil {
		return err
	}
	if club.AdminID == userID {
		return ErrAdminMustTransfer
	}

	return l.remove(ctx, MembershipKey{UserID: userID, ClubID: clubID})
}

// RemoveMember removes userID from the club on behalf of actorID, who must be the club admin.
func (l *Ledger) RemoveMember(ctx context.Context, clubID string, userID string, actorID string) error {
	if err := validID("user id", userID); err != nil {
		return err
	}
	club, err := l.club(ctx, clubID)
	if err != nil {
		return err
	}
	if actorID == "" || club.AdminID != actorID {
		return ErrNotAuthorized
	}
	if userID == actorID {
		return ErrAdminMustTransfer
	}

	if err = l.remove(ctx, MembershipKey{UserID: userID, ClubID: clubID}); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Member removed by admin", slog.String("club_id", clubID), slog.String("user_id", userID), slog.String("admin_id", actorID))
	return nil
}

func (l *Ledger) remove(ctx context.Context, key MembershipKey) error {
	path := key.Path()
	if _, err := l.store.Get(ctx, path); err != nil {
		return storeError(err, ErrNotMember, "failed to read membership")
	}
	if err := l.store.Delete(ctx, path); err != nil {
		return storeError(err, nil, "failed to delete membership")
	}

	slog.InfoContext(ctx, "Member left club", slog.String("club_id", key.ClubID), slog.String("user_id", key.UserID))
	l.adjustCount(ctx, key.ClubID, -1)
	return nil
}

func (l *Ledger) IsMember(ctx context.Context, userID string, clubID string) (bool, error) {
	if userID == "" || clubID == "" {
		return false, nil
	}
	_, err := l.store.Get(ctx, MembershipKey{UserID: userID, ClubID: clubID}.Path())
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeError(err, nil, "failed to read membership")
	}
	return true, nil
}

func (l *Ledger) ListMembers(ctx context.Context, clubID string) ([]Membership, error) {
	return l.list(ctx, fieldClubID, clubID)
}

func (l *Ledger) ListClubsOf(ctx context.Context, userID string) ([]Membership, error) {
	return l.list(ctx, fieldUserID, userID)
}

func (l *Ledger) list(ctx context.Context, field string, id string) ([]Membership, error) {
	nodes, err := l.store.Query(ctx, store.CollectionMemberships, store.Eq(field, id))
	if err != nil {
		return nil, storeError(err, nil, "failed to query memberships")
	}

	memberships := make([]Membership, 0, len(nodes))
	for _, node := range nodes {
		var membership Membership
		if err = node.Decode(&membership); err != nil {
			slog.WarnContext(ctx, "Skipping malformed membership", slog.String("path", node.Path.String()), slog.Any("err", err))
			continue
		}
		memberships = append(memberships, membership)
	}
	return memberships, nil
}

func (l *Ledger) club(ctx context.Context, clubID string) (Club, error) {
	if err := validID("club id", clubID); err != nil {
		return Club{}, err
	}
	node, err := l.store.Get(ctx, clubPath(clubID))
	if err != nil {
		return Club{}, storeError(err, ErrClubNotFound, "failed to read club")
	}
	var club Club
	if err = node.Decode(&club); err != nil {
		return Club{}, storeError(err, nil, "failed to decode club")
	}
	club.ID = clubID
	return club, nil
}

func (l *Ledger) adjustCount(ctx context.Context, clubID string, delta int) {
	count, err := l.counter.add(ctx, clubID, delta)
	if err != nil {
		slog.WarnContext(ctx, "Failed to update club member count", slog.String("club_id", clubID), slog.Int("delta", delta), slog.Any("err", err))
		return
	}
	slog.DebugContext(ctx, "Updated club member count", slog.String("club_id", clubID), slog.Int("member_count", count))
}
