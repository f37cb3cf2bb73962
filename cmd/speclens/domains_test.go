package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Harshitk-cp/speclens/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestValidateDomain(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "good", catalog.MetaFile), "id: good\nversion: \"1.0.0\"\ncategories:\n  - id: goals\n")
	writeFile(t, filepath.Join(root, "good", "questions.yaml"), "questions:\n  - id: q1\n    text: What is the goal?\n    category: goals\n")
	writeFile(t, filepath.Join(root, "bad", catalog.MetaFile), "id: bad\nversion: \"1.0.0\"\ncategories:\n  - id: goals\n")
	writeFile(t, filepath.Join(root, "bad", "questions.yaml"), "questions:\n  - id: q1\n    text: Which database?\n    category: tech_stack\n  - id: q2\n    text: \"\"\n    category: goals\n")

	registry := catalog.NewRegistry(root, zap.NewNop())
	require.NoError(t, registry.Init(context.Background()))
	assert.Equal(t, []string{"bad", "good"}, registry.IDs())

	assert.Empty(t, validateDomain(context.Background(), registry, "good"))

	problems := validateDomain(context.Background(), registry, "bad")
	require.GreaterOrEqual(t, len(problems), 2, "every problem is reported, not just the first")
	joined := strings.Join(problems, "\n")
	assert.Contains(t, joined, "unknown category")
	assert.Contains(t, joined, "text")

	problems = validateDomain(context.Background(), registry, "missing")
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "not found")
}
