package app

import (
	"context"
	"os"
	"path/filepath"

	"goalcast/domain/core"
	"goalcast/domain/model"
	"goalcast/internal/ensemble"
	"goalcast/internal/errors"
	"goalcast/internal/ingest"
	"goalcast/internal/learn"
	"goalcast/internal/logging"
	"goalcast/internal/predict"
	"goalcast/ports"

	"github.com/sirupsen/logrus"
)

// PredictionService scores fixtures with a competition's persisted
// ensemble and its final feature table.
type PredictionService struct {
	store        ports.ArtifactStore
	reader       ports.TableReader
	registry     *learn.Registry
	predictor    *predict.Predictor
	processedDir string
	log          *logrus.Entry
}

// NewPredictionService creates a prediction service
func NewPredictionService(store ports.ArtifactStore, reader ports.TableReader, predictor *predict.Predictor, processedDir string, log *logrus.Entry) *PredictionService {
	return &PredictionService{
		store:        store,
		reader:       reader,
		registry:     learn.DefaultRegistry(),
		predictor:    predictor,
		processedDir: processedDir,
		log:          logging.Component(log, "prediction"),
	}
}

// Artifact loads the persisted artifact of a competition
func (s *PredictionService) Artifact(ctx context.Context, competition core.CompetitionID) (*model.Artifact, error) {
	return s.store.Load(ctx, competition)
}

// Predict scores one fixture
func (s *PredictionService) Predict(ctx context.Context, competition core.CompetitionID, fx predict.Fixture) (*predict.Prediction, error) {
	if fx.HomeTeam == "" || fx.AwayTeam == "" {
		return nil, errors.InvalidInput("home_team and away_team are required")
	}

	artifact, err := s.store.Load(ctx, competition)
	if err != nil {
		return nil, err
	}
	voting, err := ensemble.FromArtifact(s.registry, artifact)
	if err != nil {
		return nil, errors.WithCode(errors.CodePersistenceError, err)
	}

	path := filepath.Join(s.processedDir, competition.ProcessedFile())
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithCode(errors.CodeNotFound, core.NewNotFoundError("processed table", competition.String()))
		}
		return nil, errors.Wrapf(err, "processed table for %s", competition)
	}
	frame, err := s.reader.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	table, err := ingest.FeatureTable(frame, artifact.Label)
	if err != nil {
		return nil, err
	}

	prediction, err := s.predictor.Predict(voting, table, artifact.Features, fx)
	if err != nil {
		return nil, err
	}
	prediction.Competition = competition

	s.log.WithFields(logrus.Fields{
		"competition": competition,
		"home_team":   fx.HomeTeam,
		"away_team":   fx.AwayTeam,
		"probability": prediction.Probability,
	}).Info("[Prediction] fixture scored")
	return prediction, nil
}
