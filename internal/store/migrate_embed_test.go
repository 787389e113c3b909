// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package store

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		assert.True(t, pattern.MatchString(name), "file %s should match NNNNNN_name.(up|down).sql", name)
		if base, ok := strings.CutSuffix(name, ".up.sql"); ok {
			ups[base] = true
		}
		if base, ok := strings.CutSuffix(name, ".down.sql"); ok {
			downs[base] = true
		}
	}

	assert.True(t, ups["000001_create_accounts"])
	assert.Equal(t, ups, downs, "every up migration needs a down migration")
}

func TestMigrationsFS_AccountsSchema(t *testing.T) {
	sql, err := fs.ReadFile(migrationsFS, migrationsDir+"/000001_create_accounts.up.sql")
	require.NoError(t, err)

	// Repository error mapping depends on these index names.
	for _, index := range []string{"accounts_email_key", "accounts_username_key"} {
		assert.Contains(t, string(sql), index)
	}
	assert.Contains(t, string(sql), "LOWER(email)")
}
