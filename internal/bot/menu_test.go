package bot

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recorderbot/internal/models"
)

func snapshotWithUsers(n int) map[int64][]models.Task {
	snap := make(map[int64][]models.Task, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		uid := int64(100 + i)
		snap[uid] = []models.Task{{
			ID:           int64(1000 + i),
			UserID:       uid,
			Username:     fmt.Sprintf("user%d", i),
			Filename:     "clip",
			DurationText: "00:05:00",
			StartedAt:    now,
			ExpectedEnd:  now.Add(5 * time.Minute),
			Phase:        models.PhaseCapturing,
		}}
	}
	return snap
}

func TestStatusPage_PageSize(t *testing.T) {
	snap := snapshotWithUsers(12)

	text, kb := buildStatusPage(snap, 0)
	assert.Contains(t, text, "Page 1/3")
	assert.Equal(t, statusPageSize, strings.Count(text, "👤 Username:"))
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], 1)
	assert.Equal(t, "status_page_1", *kb.InlineKeyboard[0][0].CallbackData)
}

func TestStatusPage_MiddlePageHasBothButtons(t *testing.T) {
	snap := snapshotWithUsers(12)

	text, kb := buildStatusPage(snap, 1)
	assert.Contains(t, text, "Page 2/3")
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard[0], 2)
	assert.Equal(t, "status_page_0", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "status_page_2", *kb.InlineKeyboard[0][1].CallbackData)
}

func TestStatusPage_ClampsOutOfRange(t *testing.T) {
	snap := snapshotWithUsers(7)

	text, _ := buildStatusPage(snap, 99)
	assert.Contains(t, text, "Page 2/2")

	text, _ = buildStatusPage(snap, -4)
	assert.Contains(t, text, "Page 1/2")
}

func TestStatusPage_SinglePageHasNoButtons(t *testing.T) {
	snap := snapshotWithUsers(3)

	text, kb := buildStatusPage(snap, 0)
	assert.Contains(t, text, "Page 1/1")
	assert.Nil(t, kb)
}

func TestStatusPage_StableUserOrder(t *testing.T) {
	snap := snapshotWithUsers(12)

	first, _ := buildStatusPage(snap, 0)
	for i := 0; i < 20; i++ {
		again, _ := buildStatusPage(snap, 0)
		require.Equal(t, first, again)
	}
}

func TestOwnStatus_Empty(t *testing.T) {
	assert.Equal(t, "You have no active recording tasks.", buildOwnStatus(nil, 42))
}

func TestOwnStatus_ListsTasks(t *testing.T) {
	snap := snapshotWithUsers(1)
	tasks := snap[100]

	text := buildOwnStatus(tasks, 100)
	assert.Contains(t, text, "user0")
	assert.Contains(t, text, "Task ID: 1000")
	assert.Contains(t, text, "00:05:00")
}

func TestUserListKB_OneRowPerUserPlusExit(t *testing.T) {
	snap := snapshotWithUsers(4)

	kb := buildUserListKB(snap)
	require.Len(t, kb.InlineKeyboard, 5)
	last := kb.InlineKeyboard[4][0]
	assert.Equal(t, "cancel_exit", *last.CallbackData)
}

func TestTaskListKB_CancelAllAndBack(t *testing.T) {
	snap := snapshotWithUsers(1)
	tasks := snap[100]

	kb := buildTaskListKB(100, tasks)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "cancel_task_1000", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "cancel_all_100", *kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "cancel_back", *kb.InlineKeyboard[1][1].CallbackData)
}

func TestConfirmCancelKB(t *testing.T) {
	kb := buildConfirmCancelKB(777)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "cancelme_confirm_777", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "cancelme_back", *kb.InlineKeyboard[1][0].CallbackData)
}
