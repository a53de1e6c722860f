// Package predict builds the feature row of an upcoming fixture from a
// competition's final table and scores it with a restored ensemble.
package predict

import (
	"fmt"
	"sort"

	"goalcast/domain/core"
	"goalcast/domain/match"
	"goalcast/internal/errors"
	"goalcast/internal/learn"
	"goalcast/internal/logging"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// DefaultRecent is how many recent matches per side feed a fixture row
const DefaultRecent = 5

// Fixture is an upcoming match
type Fixture struct {
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`
}

// Prediction is the outcome for one fixture
type Prediction struct {
	Competition core.CompetitionID `json:"competition"`
	HomeTeam    string             `json:"home_team"`
	AwayTeam    string             `json:"away_team"`
	Label       string             `json:"label"`
	Over        bool               `json:"over"`
	Probability float64            `json:"probability"`
	Features    map[string]float64 `json:"features"`
}

// Predictor turns fixtures into model inputs
type Predictor struct {
	roles  Roles
	recent int
	log    *logrus.Entry
}

// NewPredictor creates a predictor; recent < 1 uses DefaultRecent
func NewPredictor(roles Roles, recent int, log *logrus.Entry) *Predictor {
	if recent < 1 {
		recent = DefaultRecent
	}
	return &Predictor{roles: roles, recent: recent, log: logging.Component(log, "predictor")}
}

// recentRows returns up to n row indices where column team equals name,
// newest first. Rows on the same date keep their table order reversed, so
// the later row counts as more recent.
func recentRows(table *match.Table, column, name string, n int) ([]int, error) {
	teams, ok := table.Text(column)
	if !ok {
		return nil, errors.DataError(fmt.Sprintf("final table has no %s column", column))
	}
	var rows []int
	for i, t := range teams {
		if t == name {
			rows = append(rows, i)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		da, db := table.Dates[rows[a]], table.Dates[rows[b]]
		if !da.Equal(db) {
			return da.After(db)
		}
		return rows[a] > rows[b]
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

func meanAt(values []float64, rows []int) (float64, error) {
	picked := make([]float64, len(rows))
	for i, r := range rows {
		picked[i] = values[r]
	}
	return stats.Mean(picked)
}

// Row builds the input row for a fixture, one value per feature in order.
// Home-side features average the home team's recent home matches,
// away-side features the away team's recent away matches, and everything
// else the mean of both averages.
func (p *Predictor) Row(table *match.Table, featureNames []string, fx Fixture) ([]float64, error) {
	homeRows, err := recentRows(table, match.ColHomeTeam, fx.HomeTeam, p.recent)
	if err != nil {
		return nil, err
	}
	awayRows, err := recentRows(table, match.ColAwayTeam, fx.AwayTeam, p.recent)
	if err != nil {
		return nil, err
	}
	if len(homeRows) == 0 {
		return nil, errors.WithCode(errors.CodeNotFound, fmt.Errorf("%w: %q has no home matches", core.ErrTeamNotFound, fx.HomeTeam))
	}
	if len(awayRows) == 0 {
		return nil, errors.WithCode(errors.CodeNotFound, fmt.Errorf("%w: %q has no away matches", core.ErrTeamNotFound, fx.AwayTeam))
	}

	row := make([]float64, len(featureNames))
	for j, name := range featureNames {
		values, ok := table.Column(name)
		if !ok {
			return nil, errors.DataError(fmt.Sprintf("final table has no feature column %s", name))
		}
		var v float64
		switch p.roles.Of(name) {
		case SideHome:
			v, err = meanAt(values, homeRows)
		case SideAway:
			v, err = meanAt(values, awayRows)
		default:
			var h, a float64
			if h, err = meanAt(values, homeRows); err == nil {
				if a, err = meanAt(values, awayRows); err == nil {
					v = (h + a) / 2
				}
			}
		}
		if err != nil {
			return nil, errors.DataError(fmt.Sprintf("cannot average %s: %v", name, err))
		}
		row[j] = v
	}
	return row, nil
}

// Predict scores a fixture
func (p *Predictor) Predict(clf learn.Classifier, table *match.Table, featureNames []string, fx Fixture) (*Prediction, error) {
	row, err := p.Row(table, featureNames, fx)
	if err != nil {
		return nil, err
	}
	X := mat.NewDense(1, len(row), row)
	proba, err := clf.PredictProba(X)
	if err != nil {
		return nil, errors.Wrap(err, "ensemble inference failed")
	}
	pred, err := clf.Predict(X)
	if err != nil {
		return nil, errors.Wrap(err, "ensemble inference failed")
	}

	values := make(map[string]float64, len(row))
	for j, name := range featureNames {
		values[name] = row[j]
	}
	out := &Prediction{
		HomeTeam:    fx.HomeTeam,
		AwayTeam:    fx.AwayTeam,
		Label:       table.Label,
		Over:        pred[0] == 1,
		Probability: proba[0],
		Features:    values,
	}
	p.log.WithFields(logrus.Fields{
		"home": fx.HomeTeam,
		"away": fx.AwayTeam,
	}).Debugf("[Predictor] P(over)=%.3f", proba[0])
	return out, nil
}
