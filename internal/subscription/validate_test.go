package subscription

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.chat/internal/model"
	appErrors "sudooom.im.chat/pkg/errors"
)

type stubGroups struct {
	groups map[int64][]*model.Group
	err    error
}

func (s *stubGroups) GetUserGroups(_ context.Context, userID int64) ([]*model.Group, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.groups[userID], nil
}

func TestPrepareMessageAdded_DefaultsToJoinedGroups(t *testing.T) {
	groups := &stubGroups{groups: map[int64][]*model.Group{3: {{ID: 7}, {ID: 9}}}}
	args := MessageAddedArgs{}

	require.NoError(t, PrepareMessageAdded(context.Background(), groups, &args, &model.User{ID: 3}))
	assert.Equal(t, []int64{7, 9}, args.GroupIDs)
}

func TestPrepareMessageAdded_Forbidden(t *testing.T) {
	groups := &stubGroups{groups: map[int64][]*model.Group{3: {{ID: 7}}}}
	user := &model.User{ID: 3}

	args := MessageAddedArgs{GroupIDs: []int64{7, 8}}
	err := PrepareMessageAdded(context.Background(), groups, &args, user)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	args = MessageAddedArgs{UserID: int64Ptr(4), GroupIDs: []int64{7}}
	err = PrepareMessageAdded(context.Background(), groups, &args, user)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	args = MessageAddedArgs{UserID: int64Ptr(3), GroupIDs: []int64{7}}
	assert.NoError(t, PrepareMessageAdded(context.Background(), groups, &args, user))
}

func TestPrepareMessageAdded_StorageError(t *testing.T) {
	groups := &stubGroups{err: errors.New("connection refused")}
	args := MessageAddedArgs{GroupIDs: []int64{7}}

	err := PrepareMessageAdded(context.Background(), groups, &args, &model.User{ID: 3})
	assert.True(t, appErrors.Is(err, appErrors.ErrStorage))
}

func TestPrepareGroupAdded(t *testing.T) {
	user := &model.User{ID: 2}

	args := GroupAddedArgs{}
	require.NoError(t, PrepareGroupAdded(&args, user))
	require.NotNil(t, args.UserID)
	assert.Equal(t, int64(2), *args.UserID)

	args = GroupAddedArgs{UserID: int64Ptr(1)}
	assert.True(t, appErrors.Is(PrepareGroupAdded(&args, user), appErrors.ErrForbidden))
}
