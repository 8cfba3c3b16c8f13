package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legacore/legacore/control-plane/pkg/models"
)

func run(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	cmd := newRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "status", "agents"})
}

func TestAgentsCommand_Table(t *testing.T) {
	out, err := run(t, nil, "agents")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "credit-repair-expert")
}

func TestAgentsCommand_JSONByCategory(t *testing.T) {
	out, err := run(t, nil, "agents", "-o", "json", "--category", "surplus-funds")
	require.NoError(t, err)

	var agents []models.AgentConfig
	require.NoError(t, json.Unmarshal([]byte(out), &agents))
	require.Len(t, agents, 1)
	assert.Equal(t, "surplus-funds-specialist", agents[0].ID)
}

func TestStatusCommand(t *testing.T) {
	env := map[string]string{"GROQ_API_KEY": "gsk_abcdefghijklmnopqrstuvwxyz"}

	out, err := run(t, env, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "GROQ")
	assert.Contains(t, out, "Current model: llama-3.3-70b-versatile via GROQ")

	out, err = run(t, env, "status", "-o", "json")
	require.NoError(t, err)
	var v models.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.True(t, v.HasAnyProvider)
	assert.Equal(t, models.ProviderGroq, v.RecommendedProvider)
}

func TestStatusCommand_BadOutput(t *testing.T) {
	_, err := run(t, nil, "status", "-o", "xml")
	assert.Error(t, err)
}
