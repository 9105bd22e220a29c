package services

import (
	"context"

	"github.com/simulacroapp/simulacro/internal/models"
)

// ScenarioCatalog is the read-only provider of scenario definitions,
// including hidden answer keys. Implementations return (nil, nil) for an
// unknown id; services translate that into a not-found error.
type ScenarioCatalog interface {
	ReadScenario(ctx context.Context, id string) (*models.Scenario, error)
}

func readScenario(ctx context.Context, catalog ScenarioCatalog, id string) (*models.Scenario, error) {
	sc, err := catalog.ReadScenario(ctx, id)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, NewNotFoundError("escenario no encontrado")
	}
	return sc, nil
}
