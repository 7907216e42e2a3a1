package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	for _, path := range [][]string{
		{"serve"},
		{"export"},
		{"results"},
		{"tasks"},
		{"tasks", "drain"},
		{"events", "import"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, path)
		assert.NotEqual(t, cmd, sub, path)
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		name string
		def  string
	}{
		{"verbose", "false"},
		{"format", "text"},
		{"config", ""},
		{"env-file", ".env"},
	}
	for _, tt := range tests {
		flag := cmd.PersistentFlags().Lookup(tt.name)
		require.NotNil(t, flag, tt.name)
		assert.Equal(t, tt.def, flag.DefValue, tt.name)
	}
	assert.Equal(t, "v", cmd.PersistentFlags().Lookup("verbose").Shorthand)
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	listen := serveCmd.Flags().Lookup("listen")
	require.NotNil(t, listen)
	assert.Equal(t, "", listen.DefValue)

	noExport := serveCmd.Flags().Lookup("no-export")
	require.NotNil(t, noExport)
	assert.Equal(t, "false", noExport.DefValue)
}

func TestTasksCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	tasksCmd, _, err := cmd.Find([]string{"tasks"})
	require.NoError(t, err)

	assert.NotNil(t, tasksCmd.Flags().Lookup("status"))
	limit := tasksCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "50", limit.DefValue)
}

func TestCommandHelp(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "surveyops", cmd.Use)
	assert.Contains(t, cmd.Long, "durable task queue")
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "results", "e1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
