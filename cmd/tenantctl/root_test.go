package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{{"migrate"}, {"warm"}, {"verify", "start"}, {"verify", "check"}, {"verify", "scan"}} {
		found, _, err := root.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], found.Name())
	}
}

func TestArgumentValidation(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"warm bad tenant", []string{"warm", "--tenant", "nope"}, "invalid --tenant"},
		{"start bad tenant", []string{"verify", "start", "nope", "acme.com"}, "invalid tenant id"},
		{"check bad tenant", []string{"verify", "check", "nope", "acme.com"}, "invalid tenant id"},
		{"start missing domain", []string{"verify", "start", "nope"}, "accepts 2 arg(s)"},
		{"scan extra args", []string{"verify", "scan", "x"}, "unknown command"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := run(tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
