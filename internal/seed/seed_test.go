package seed

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yigit/registrar/internal/app/repositories/inmem"
)

func TestCreateDefaultDataIsIdempotent(t *testing.T) {
	repos := inmem.NewStore().Repositories()
	ctx := context.Background()

	require.NoError(t, CreateDefaultData(ctx, repos.Departments, zerolog.Nop()))
	require.NoError(t, CreateDefaultData(ctx, repos.Departments, zerolog.Nop()))

	departments, err := repos.Departments.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, departments, len(DefaultDepartments))

	math, err := repos.Departments.GetByCode(ctx, "MATH")
	require.NoError(t, err)
	assert.Equal(t, "Mathematics", math.Name)
}
