package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/promptlab/internal/auth"
	"github.com/nikhilbhutani/promptlab/internal/models"
)

func TestPrintVersions(t *testing.T) {
	msg := "Restored from version 1"
	created := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, printVersions(&buf, []models.PromptVersion{
		{VersionNumber: 3, CommitMessage: &msg, CreatedAt: created},
		{VersionNumber: 2, CreatedAt: created},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "VERSION"))
	assert.Contains(t, lines[1], "Restored from version 1")
	assert.Contains(t, lines[1], "2024-03-05 09:30")
	assert.True(t, strings.HasPrefix(lines[2], "2"))
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRuns(&buf, []models.PromptRun{
		{ID: uuid.New(), Model: "gpt-4o", Success: true, Metrics: &models.RunMetrics{ResponseTime: null.FloatFrom(812.4)}},
		{ID: uuid.New(), Model: "gpt-4o"},
	}))
	out := buf.String()
	assert.Contains(t, out, "812")
	assert.Contains(t, out, "false")
}

func TestParseUUIDs(t *testing.T) {
	a := uuid.New()
	ids, err := parseUUIDs([]string{" " + a.String(), ""})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a}, ids)

	_, err = parseUUIDs([]string{"nope"})
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	user := uuid.New()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "--user", user.String(), "--role", auth.RoleReviewer})
	require.NoError(t, rootCmd.Execute())

	claims := &auth.Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("cli-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, user.String(), claims.Subject)
	assert.Equal(t, auth.RoleReviewer, claims.Role)
}
