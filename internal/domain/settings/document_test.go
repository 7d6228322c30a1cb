package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDropInvalidReminders(t *testing.T) {
	d := Default()
	d.Reminders = []Reminder{
		{ID: "a", Time: "08:00", Message: "ok"},
		{ID: "", Time: "09:00", Message: "no id"},
		{ID: "a", Time: "10:00", Message: "duplicate"},
		{ID: "b", Time: "24:00", Message: "bad time"},
		{ID: "c", Time: "9:15", Message: "ok too"},
	}
	d.ReminderLog = map[string]string{"a": "2026-10-13", "b": "2026-10-13"}

	dropped := d.DropInvalidReminders()

	require.Len(t, dropped, 3)
	assert.Equal(t, []string{"ok", "ok too"}, []string{d.Reminders[0].Message, d.Reminders[1].Message})
	assert.Equal(t, map[string]string{"a": "2026-10-13"}, d.ReminderLog, "a kept id keeps its log entry")
	assert.NoError(t, d.Validate())
}

func TestDropInvalidRemindersKeepsCleanDocument(t *testing.T) {
	d := Default()
	d.Reminders = []Reminder{{ID: "a", Time: "08:00", Message: "ok"}}

	assert.Empty(t, d.DropInvalidReminders())
	assert.Len(t, d.Reminders, 1)
}
