package rules

import (
	"github.com/DrSkyle/wastewatch/pkg/engine/pricing"
)

// File is the on-disk rule set.
type File struct {
	Version string     `yaml:"version" validate:"required"`
	Rules   []RuleSpec `yaml:"rules" validate:"required,min=1,dive"`
}

// RuleSpec is a detection rule as written in YAML.
type RuleSpec struct {
	ID              string             `yaml:"id" validate:"required"`
	ResourceType    string             `yaml:"resource_type" validate:"required"`
	Classification  string             `yaml:"classification" validate:"required"`
	Description     string             `yaml:"description"`
	Granularity     string             `yaml:"granularity"`
	EmptySeries     string             `yaml:"empty_series" validate:"omitempty,oneof=zero indeterminate"`
	TolerateMissing bool               `yaml:"tolerate_missing_metrics"`
	Thresholds      map[string]float64 `yaml:"thresholds"`
	When            ExprSpec           `yaml:"when"`
	Recommend       pricing.Plan       `yaml:"recommend"`
}

// ExprSpec is one node of a rule predicate. Exactly one field may be set.
type ExprSpec struct {
	All     []ExprSpec   `yaml:"all"`
	Any     []ExprSpec   `yaml:"any"`
	Not     *ExprSpec    `yaml:"not"`
	Compare *CompareSpec `yaml:"compare"`
	CEL     *CELSpec     `yaml:"cel"`
}

// CompareSpec compares two operands.
type CompareSpec struct {
	Left  OperandSpec `yaml:"left"`
	Op    string      `yaml:"op" validate:"required,oneof=< <= > >= == !="`
	Right OperandSpec `yaml:"right"`
}

// CELSpec is a CEL predicate leaf. Metrics lists the series the expression reads.
type CELSpec struct {
	Expr    string   `yaml:"expr" validate:"required"`
	Metrics []string `yaml:"metrics"`
}

// OperandSpec is a value source. Exactly one field may be set.
type OperandSpec struct {
	Attr      string        `yaml:"attr"`
	Metric    string        `yaml:"metric"`
	Agg       string        `yaml:"agg"`
	Const     any           `yaml:"const"`
	Threshold string        `yaml:"threshold"`
	AgeDays   bool          `yaml:"age_days"`
	Mul       []OperandSpec `yaml:"mul"`
	Div       []OperandSpec `yaml:"div"`
}
