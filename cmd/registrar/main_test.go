package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{{"serve"}, {"migrate"}, {"import", "courses"}, {"import", "grades"}, {"failed-jobs"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestGradeImportRequiresSection(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"import", "grades", "roster.csv"})

	err := root.Execute()
	assert.ErrorContains(t, err, "section")
}

func TestImportRejectsNonCSV(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"import", "courses", "catalog.xlsx"})

	err := root.Execute()
	assert.ErrorContains(t, err, "only CSV files are accepted")
}
