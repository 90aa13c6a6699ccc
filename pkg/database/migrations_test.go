package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetMigrations_Ordered(t *testing.T) {
	migrations := getMigrations()

	assert.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, "migrations must be numbered consecutively")
		assert.NotEmpty(t, m.Description)
		assert.NotNil(t, m.Up)
		assert.NotNil(t, m.Down)
	}
}
