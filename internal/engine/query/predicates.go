// Package query compiles structured filter intents into executable
// predicates over the entity-facet-relation store. Compilation is pure
// apart from schema cache lookups, so predicates can be unit tested
// without a live database.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operator represents a comparison operator on an entity column.
type Operator int

const (
	OpEqual Operator = iota
	OpGreaterThanOrEqual
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpBetween
)

// String returns the string representation of the operator.
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpBetween:
		return "BETWEEN"
	default:
		return "UNKNOWN"
	}
}

// Cond is one executable condition correlated to the entity row alias
// `e`.
type Cond interface {
	SQL(paramCounter *int, args *[]interface{}) (string, error)
}

// FieldCond compares an entity column against a value.
type FieldCond struct {
	Column   string
	Operator Operator
	Value    interface{}
}

// SQL renders the condition with $n placeholders.
func (c *FieldCond) SQL(paramCounter *int, args *[]interface{}) (string, error) {
	column := "e." + c.Column

	switch c.Operator {
	case OpEqual, OpGreaterThanOrEqual, OpLessThanOrEqual:
		*args = append(*args, c.Value)
		sql := fmt.Sprintf("%s %s $%d", column, c.Operator, *paramCounter)
		*paramCounter++
		return sql, nil

	case OpIn, OpNotIn:
		values, ok := c.Value.([]interface{})
		if !ok {
			return "", fmt.Errorf("%s operator requires []interface{} value", c.Operator)
		}
		if len(values) == 0 {
			// IN () never matches; NOT IN () always does.
			if c.Operator == OpIn {
				return "FALSE", nil
			}
			return "TRUE", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			*args = append(*args, v)
			placeholders[i] = fmt.Sprintf("$%d", *paramCounter)
			*paramCounter++
		}
		return fmt.Sprintf("%s %s (%s)", column, c.Operator, strings.Join(placeholders, ", ")), nil

	case OpBetween:
		values, ok := c.Value.([]interface{})
		if !ok || len(values) != 2 {
			return "", fmt.Errorf("BETWEEN operator requires [min, max] values")
		}
		*args = append(*args, values[0], values[1])
		sql := fmt.Sprintf("%s BETWEEN $%d AND $%d", column, *paramCounter, *paramCounter+1)
		*paramCounter += 2
		return sql, nil

	default:
		return "", fmt.Errorf("unsupported operator: %v", c.Operator)
	}
}

// NullOrNotInCond keeps rows whose column is NULL or outside the given
// set. Used for negative location filters so entities without a
// location are not silently dropped.
type NullOrNotInCond struct {
	Column string
	Values []interface{}
}

// SQL renders the condition.
func (c *NullOrNotInCond) SQL(paramCounter *int, args *[]interface{}) (string, error) {
	if len(c.Values) == 0 {
		return "TRUE", nil
	}
	placeholders := make([]string, len(c.Values))
	for i, v := range c.Values {
		*args = append(*args, v)
		placeholders[i] = fmt.Sprintf("$%d", *paramCounter)
		*paramCounter++
	}
	column := "e." + c.Column
	return fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))",
		column, column, strings.Join(placeholders, ", ")), nil
}

// FacetCond checks for the presence (or, negated, the absence) of a
// facet value of a given type on the entity. It always compiles to a
// correlated EXISTS subquery: negation via NOT EXISTS keeps entities
// with no facet rows at all, which an exclusion join would drop.
type FacetCond struct {
	FacetTypeID   uuid.UUID
	Negate        bool
	MinConfidence *float64
	VerifiedOnly  bool
	EventFrom     *time.Time
	EventTo       *time.Time
}

// SQL renders the subquery.
func (c *FacetCond) SQL(paramCounter *int, args *[]interface{}) (string, error) {
	var sub strings.Builder
	sub.WriteString("SELECT 1 FROM facet_values fv WHERE fv.entity_id = e.id")

	*args = append(*args, c.FacetTypeID)
	sub.WriteString(fmt.Sprintf(" AND fv.facet_type_id = $%d", *paramCounter))
	*paramCounter++

	if c.MinConfidence != nil {
		*args = append(*args, *c.MinConfidence)
		sub.WriteString(fmt.Sprintf(" AND fv.confidence_score >= $%d", *paramCounter))
		*paramCounter++
	}
	if c.VerifiedOnly {
		sub.WriteString(" AND fv.human_verified")
	}
	if c.EventFrom != nil {
		*args = append(*args, *c.EventFrom)
		sub.WriteString(fmt.Sprintf(" AND fv.event_date >= $%d", *paramCounter))
		*paramCounter++
	}
	if c.EventTo != nil {
		*args = append(*args, *c.EventTo)
		sub.WriteString(fmt.Sprintf(" AND fv.event_date <= $%d", *paramCounter))
		*paramCounter++
	}

	keyword := "EXISTS"
	if c.Negate {
		keyword = "NOT EXISTS"
	}
	return fmt.Sprintf("%s (%s)", keyword, sub.String()), nil
}

// Group combines conditions and nested groups with AND or OR.
type Group struct {
	Conds  []Cond
	Groups []*Group
	Or     bool
}

// NewGroup creates an empty group.
func NewGroup(or bool) *Group {
	return &Group{Or: or}
}

// Add appends a condition to the group.
func (g *Group) Add(cond Cond) {
	g.Conds = append(g.Conds, cond)
}

// AddGroup appends a nested group.
func (g *Group) AddGroup(sub *Group) {
	g.Groups = append(g.Groups, sub)
}

// Empty reports whether the group holds nothing.
func (g *Group) Empty() bool {
	return len(g.Conds) == 0 && len(g.Groups) == 0
}

// SQL renders the group, parenthesizing nested groups.
func (g *Group) SQL(paramCounter *int, args *[]interface{}) (string, error) {
	parts := make([]string, 0, len(g.Conds)+len(g.Groups))

	for _, cond := range g.Conds {
		sql, err := cond.SQL(paramCounter, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}

	for _, sub := range g.Groups {
		if sub.Empty() {
			continue
		}
		sql, err := sub.SQL(paramCounter, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("(%s)", sql))
	}

	if len(parts) == 0 {
		return "", nil
	}

	connector := " AND "
	if g.Or {
		connector = " OR "
	}
	return strings.Join(parts, connector), nil
}
