package service

import (
	"github.com/leapstack-labs/dbtlineage/internal/lineage"
	"github.com/leapstack-labs/dbtlineage/internal/registry"
)

// Severity grades how a change to a column affects a dependent column.
type Severity string

const (
	// SeverityCritical marks columns computed from the changed value.
	SeverityCritical Severity = "critical"
	// SeverityLowImpact marks columns that pass the value through.
	SeverityLowImpact Severity = "low_impact"
)

// SeverityOf grades a transformation type.
func SeverityOf(t lineage.TransformationType) Severity {
	if t == lineage.Derived {
		return SeverityCritical
	}
	return SeverityLowImpact
}

// AffectedColumn is one downstream column of an impact analysis.
type AffectedColumn struct {
	Model              string                     `json:"model" yaml:"model"`
	Column             string                     `json:"column" yaml:"column"`
	TransformationType lineage.TransformationType `json:"transformation_type" yaml:"transformation_type"`
	Severity           Severity                   `json:"severity" yaml:"severity"`
	SQLExpression      string                     `json:"sql_expression,omitempty" yaml:"sql_expression,omitempty"`
}

// AffectedExposure is an exposure reached by an impact analysis.
type AffectedExposure struct {
	Name            string   `json:"name" yaml:"name"`
	Type            string   `json:"type,omitempty" yaml:"type,omitempty"`
	URL             string   `json:"url,omitempty" yaml:"url,omitempty"`
	Description     string   `json:"description,omitempty" yaml:"description,omitempty"`
	Owner           string   `json:"owner,omitempty" yaml:"owner,omitempty"`
	DependsOnModels []string `json:"depends_on_models" yaml:"depends_on_models"`
}

// ImpactCounts totals an impact analysis.
type ImpactCounts struct {
	TotalAffectedModels    int `json:"affected_models" yaml:"affected_models"`
	TotalAffectedColumns   int `json:"affected_columns" yaml:"affected_columns"`
	TotalAffectedExposures int `json:"affected_exposures" yaml:"affected_exposures"`
	CriticalCount          int `json:"critical_count" yaml:"critical_count"`
	LowImpactCount         int `json:"low_impact_count" yaml:"low_impact_count"`
}

// ImpactSummary lists what depends on a column.
type ImpactSummary struct {
	Model             string             `json:"model" yaml:"model"`
	Column            string             `json:"column" yaml:"column"`
	AffectedModels    []string           `json:"affected_models" yaml:"affected_models"`
	AffectedColumns   []AffectedColumn   `json:"affected_columns" yaml:"affected_columns"`
	AffectedExposures []AffectedExposure `json:"affected_exposures" yaml:"affected_exposures"`
	Summary           ImpactCounts       `json:"summary" yaml:"summary"`
}

// Impact grades every column downstream of model.column. Affected columns
// are ordered by model, then column.
func (s *Service) Impact(model, column string) (*ImpactSummary, error) {
	m, c, err := s.column(model, column)
	if err != nil {
		return nil, err
	}
	refs, err := s.Downstream(m.Name, c.Name)
	if err != nil {
		return nil, err
	}

	out := &ImpactSummary{
		Model:             m.Name,
		Column:            c.Name,
		AffectedModels:    refs.ModelNames(),
		AffectedColumns:   []AffectedColumn{},
		AffectedExposures: []AffectedExposure{},
	}
	for _, modelName := range out.AffectedModels {
		for _, colName := range refs.ColumnNames(modelName) {
			fact := refs.Models[modelName][colName]
			ac := AffectedColumn{
				Model:              modelName,
				Column:             colName,
				TransformationType: fact.TransformationType,
				Severity:           SeverityOf(fact.TransformationType),
				SQLExpression:      fact.SQLExpression,
			}
			out.AffectedColumns = append(out.AffectedColumns, ac)
			if ac.Severity == SeverityCritical {
				out.Summary.CriticalCount++
			} else {
				out.Summary.LowImpactCount++
			}
		}
	}
	for _, name := range refs.Exposures {
		e, err := s.reg.Exposure(name)
		if err != nil {
			return nil, err
		}
		out.AffectedExposures = append(out.AffectedExposures, affectedExposure(e))
	}

	out.Summary.TotalAffectedModels = len(out.AffectedModels)
	out.Summary.TotalAffectedColumns = len(out.AffectedColumns)
	out.Summary.TotalAffectedExposures = len(out.AffectedExposures)
	return out, nil
}

func affectedExposure(e *registry.Exposure) AffectedExposure {
	return AffectedExposure{
		Name:            e.Name,
		Type:            e.Type,
		URL:             e.URL,
		Description:     e.Description,
		Owner:           e.Owner,
		DependsOnModels: e.DependsOn,
	}
}
