package service

import (
	"context"

	"BriefMaker/internal/domain/models"
)

// IndicatorEngine computes the technical indicator vector for every symbol
// from its window history, oldest bar first.
type IndicatorEngine interface {
	Compute(ctx context.Context, history [][]models.Bar) ([][models.IndicatorCount]float32, error)
}
