package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apxerrors "github.com/metacogma/meetcapture/errors"
	"github.com/metacogma/meetcapture/models/platform"
	"github.com/metacogma/meetcapture/models/session"
)

func newTestSession(meetingID string) *session.Session {
	return session.New(meetingID, meetingID+"-sess", platform.GoogleMeet, "", "", "")
}

func TestInsertUniqueRejectsDuplicate(t *testing.T) {
	r := New(t.TempDir() + "/active_sessions.json")

	require.NoError(t, r.InsertUnique(newTestSession("M3")))

	err := r.InsertUnique(newTestSession("M3"))
	require.Error(t, err)
	apxErr, ok := err.(*apxerrors.Error)
	require.True(t, ok)
	assert.Equal(t, apxerrors.AlreadyActive, apxErr.Kind)

	_, exists := r.Get("M3")
	assert.True(t, exists)
}

func TestGetMissingReturnsFalse(t *testing.T) {
	r := New(t.TempDir() + "/active_sessions.json")
	_, exists := r.Get("nope")
	assert.False(t, exists)
}

func TestRemoveClearsLiveAndPersisted(t *testing.T) {
	r := New(t.TempDir() + "/active_sessions.json")
	require.NoError(t, r.InsertUnique(newTestSession("M1")))

	require.NoError(t, r.Remove("M1"))
	_, exists := r.Get("M1")
	assert.False(t, exists)

	rec, ok, err := r.PersistedOrphan("M1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, rec.SessionID)
}

func TestRemoveIsNoOpForUnknownID(t *testing.T) {
	r := New(t.TempDir() + "/active_sessions.json")
	assert.NoError(t, r.Remove("never-existed"))
}

func TestPersistedOrphanIgnoresLiveSessions(t *testing.T) {
	r := New(t.TempDir() + "/active_sessions.json")
	require.NoError(t, r.InsertUnique(newTestSession("M1")))

	_, ok, err := r.PersistedOrphan("M1")
	require.NoError(t, err)
	assert.False(t, ok, "a live session must not also surface as an orphan")
}

func TestLiveMeetingIDsSnapshot(t *testing.T) {
	r := New(t.TempDir() + "/active_sessions.json")
	require.NoError(t, r.InsertUnique(newTestSession("M1")))
	require.NoError(t, r.InsertUnique(newTestSession("M2")))

	ids := r.LiveMeetingIDs()
	assert.ElementsMatch(t, []string{"M1", "M2"}, ids)
	assert.Equal(t, 2, r.LiveCount())
}

func TestAllPersistedSurvivesRemoval(t *testing.T) {
	r := New(t.TempDir() + "/active_sessions.json")
	require.NoError(t, r.InsertUnique(newTestSession("M1")))
	require.NoError(t, r.InsertUnique(newTestSession("M2")))
	require.NoError(t, r.Remove("M1"))

	all, err := r.AllPersisted()
	require.NoError(t, err)
	_, hasM1 := all["M1"]
	_, hasM2 := all["M2"]
	assert.False(t, hasM1)
	assert.True(t, hasM2)
}
