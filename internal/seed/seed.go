package seed

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	appModels "github.com/yigit/registrar/internal/app/models"
	appRepos "github.com/yigit/registrar/internal/app/repositories"
	"github.com/yigit/registrar/internal/pkg/apperrors"
)

// DefaultDepartments are created on startup so catalog imports have codes to resolve.
var DefaultDepartments = []appModels.Department{
	{Name: "Computer Engineering", Code: "CENG"},
	{Name: "Electrical Engineering", Code: "EEE"},
	{Name: "Mathematics", Code: "MATH"},
	{Name: "Physics", Code: "PHYS"},
}

// CreateDefaultData creates the default departments if they don't exist.
func CreateDefaultData(ctx context.Context, departmentRepo appRepos.DepartmentRepository, lgr zerolog.Logger) error {
	lgr.Info().Msg("Checking/Creating default departments...")
	var finalErr error

	created := 0
	for _, d := range DefaultDepartments {
		department := d
		err := departmentRepo.Create(ctx, &department)
		switch {
		case err == nil:
			created++
		case errors.Is(err, apperrors.ErrResourceAlreadyExists):
		default:
			lgr.Error().Err(err).Str("code", d.Code).Msg("Error creating department")
			finalErr = errors.Join(finalErr, err)
		}
	}

	lgr.Info().Int("created", created).Msg("Default data check/creation finished.")
	return finalErr
}
