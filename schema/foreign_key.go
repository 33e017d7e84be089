package schema

import "strings"

// ForeignKeyEdge is one column pair of a foreign key constraint.
type ForeignKeyEdge struct {
	Constraint   string
	SourceSchema string
	SourceTable  string
	SourceColumn string
	TargetSchema string
	TargetTable  string
	TargetColumn string
	Position     int
}

func (e ForeignKeyEdge) Source() ObjectRef {
	return ObjectRef{Schema: e.SourceSchema, Name: e.SourceTable}
}

func (e ForeignKeyEdge) Target() ObjectRef {
	return ObjectRef{Schema: e.TargetSchema, Name: e.TargetTable}
}

func (e ForeignKeyEdge) String() string {
	return e.Source().String() + "." + e.SourceColumn + " -> " + e.Target().String() + "." + e.TargetColumn
}

type ColumnPair struct {
	Source string
	Target string
}

// ForeignKey groups the edges of one constraint; composite keys carry more
// than one pair, ordered by position.
type ForeignKey struct {
	Name   string
	Source ObjectRef
	Target ObjectRef
	Pairs  []ColumnPair
}

func (fk ForeignKey) Composite() bool {
	return len(fk.Pairs) > 1
}

func (fk ForeignKey) SourceColumns() []string {
	cols := make([]string, 0, len(fk.Pairs))
	for _, p := range fk.Pairs {
		cols = append(cols, p.Source)
	}
	return cols
}

func (fk ForeignKey) TargetColumns() []string {
	cols := make([]string, 0, len(fk.Pairs))
	for _, p := range fk.Pairs {
		cols = append(cols, p.Target)
	}
	return cols
}

func (fk ForeignKey) String() string {
	return fk.Source.String() + "(" + strings.Join(fk.SourceColumns(), ", ") + ") -> " +
		fk.Target.String() + "(" + strings.Join(fk.TargetColumns(), ", ") + ")"
}

// Edges flattens the constraint back into its column pairs.
func (fk ForeignKey) Edges() []ForeignKeyEdge {
	edges := make([]ForeignKeyEdge, 0, len(fk.Pairs))
	for i, p := range fk.Pairs {
		edges = append(edges, ForeignKeyEdge{
			Constraint:   fk.Name,
			SourceSchema: fk.Source.Schema,
			SourceTable:  fk.Source.Name,
			SourceColumn: p.Source,
			TargetSchema: fk.Target.Schema,
			TargetTable:  fk.Target.Name,
			TargetColumn: p.Target,
			Position:     i + 1,
		})
	}
	return edges
}

// GroupForeignKeys folds edges into constraints. Edges must arrive ordered
// by source table, constraint name and position, which is how the catalog
// queries return them.
func GroupForeignKeys(edges []ForeignKeyEdge) []ForeignKey {
	var fks []ForeignKey
	for _, e := range edges {
		n := len(fks)
		if n > 0 && fks[n-1].Name == e.Constraint && fks[n-1].Source == e.Source() {
			fks[n-1].Pairs = append(fks[n-1].Pairs, ColumnPair{Source: e.SourceColumn, Target: e.TargetColumn})
			continue
		}
		fks = append(fks, ForeignKey{
			Name:   e.Constraint,
			Source: e.Source(),
			Target: e.Target(),
			Pairs:  []ColumnPair{{Source: e.SourceColumn, Target: e.TargetColumn}},
		})
	}
	return fks
}
