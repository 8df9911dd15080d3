package estimate

import (
	"context"
	"fmt"
	"strings"

	"github.com/saadjs/carbon-cli/internal/model"
	"github.com/saadjs/carbon-cli/internal/provider/climatiq"
)

const (
	StrategyLocal  = "local"
	StrategyRemote = "remote"
)

// Result is one estimation outcome with its provenance.
type Result struct {
	Strategy    string
	CO2e        float64
	Unit        string
	CO2         *float64
	CH4         *float64
	N2O         *float64
	Source      string
	LCAActivity string
	Details     model.Payload
}

type Estimator interface {
	Name() string
	Estimate(ctx context.Context, req Request) (Result, error)
}

// New returns the estimator registered under name. The remote strategy
// needs a client; the local one ignores it.
func New(name string, client *climatiq.Client) (Estimator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyRemote:
		if client == nil {
			return nil, fmt.Errorf("remote strategy requires a climatiq client")
		}
		return Remote{Client: client}, nil
	case StrategyLocal:
		return LocalFormula{}, nil
	default:
		return nil, fmt.Errorf("unknown estimation strategy %q (want %s or %s)", name, StrategyRemote, StrategyLocal)
	}
}

// Draft turns a parsed request and its estimate into the record draft the
// history repository stores.
func Draft(req Request, res Result, label string) model.RecordDraft {
	return model.RecordDraft{
		Category:      req.Category,
		CategoryLabel: req.Category.Label(),
		Label:         strings.TrimSpace(label),
		CO2e:          res.CO2e,
		CO2eUnit:      res.Unit,
		CO2:           res.CO2,
		CH4:           res.CH4,
		N2O:           res.N2O,
		Details:       res.Details,
		FormData:      req.Form,
		Source:        res.Source,
		LCAActivity:   res.LCAActivity,
	}
}
